// Package profile holds publish destination definitions, their persisted
// store, and the per-profile workspace layout on disk.
package profile

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Mechanism selects the uploader used for a profile.
type Mechanism string

// Publish mechanisms.
const (
	MechanismAWSCLI Mechanism = "aws-cli"
	MechanismS3     Mechanism = "s3"
	MechanismLocal  Mechanism = "local"
)

var idRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Profile is a named publish destination.
type Profile struct {
	ID                  string        `yaml:"id" json:"id"`
	Name                string        `yaml:"name" json:"name"`
	BaseURL             string        `yaml:"base_url" json:"base_url"`
	HomeNotePath        string        `yaml:"home_note_path" json:"home_note_path"`
	ExcludedDirectories []string      `yaml:"excluded_directories" json:"excluded_directories"`
	Mechanism           Mechanism     `yaml:"mechanism" json:"mechanism"`
	PublishContentIndex bool          `yaml:"publish_content_index" json:"publish_content_index"`
	LastFullPublish     time.Time     `yaml:"last_full_publish,omitempty" json:"last_full_publish"`
	AWS                 AWSSettings   `yaml:"aws" json:"aws"`
	Local               LocalSettings `yaml:"local" json:"local"`
}

// AWSSettings configures the aws-cli and s3 mechanisms.
type AWSSettings struct {
	Profile            string `yaml:"profile" json:"profile"`
	Region             string `yaml:"region" json:"region"`
	Bucket             string `yaml:"bucket" json:"bucket"`
	Prefix             string `yaml:"prefix" json:"prefix"`
	Endpoint           string `yaml:"endpoint" json:"endpoint"`
	AccessKey          string `yaml:"access_key" json:"-"`
	SecretKey          string `yaml:"secret_key" json:"-"`
	DistributionID     string `yaml:"distribution_id" json:"distribution_id"`
	InvalidationScheme string `yaml:"invalidation_scheme" json:"invalidation_scheme"`
	CLIPath            string `yaml:"cli_path" json:"cli_path"`
}

// LocalSettings configures the local mechanism.
type LocalSettings struct {
	OutputPath string `yaml:"output_path" json:"output_path"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// Validate validates the profile.
func (p *Profile) Validate() error {
	remote := p.Mechanism == MechanismAWSCLI || p.Mechanism == MechanismS3
	if err := validation.ValidateStruct(p,
		validation.Field(&p.ID, validation.Required, validation.Match(idRe)),
		validation.Field(&p.Mechanism, validation.Required, validation.In(MechanismAWSCLI, MechanismS3, MechanismLocal)),
		validation.Field(&p.BaseURL, validation.When(p.BaseURL != "", validation.Match(regexp.MustCompile(`^https?://`)))),
	); err != nil {
		return fmt.Errorf("profile %q: %w", p.ID, err)
	}
	if remote {
		if err := p.AWS.validate(p.Mechanism); err != nil {
			return fmt.Errorf("profile %q: aws: %w", p.ID, err)
		}
	}
	return nil
}

func (a *AWSSettings) validate(m Mechanism) error {
	return validation.ValidateStruct(a,
		validation.Field(&a.Bucket, validation.Required),
		validation.Field(&a.Region, validation.When(m == MechanismS3, validation.Required)),
		validation.Field(&a.InvalidationScheme, validation.In(
			SchemeIndividual, SchemeConnected, SchemeSinceLast, SchemeAll, SchemeManual,
		)),
	)
}

// Excludes reports whether a vault path lives under one of the profile's
// excluded directories, either at the vault root or nested at any depth.
func (p *Profile) Excludes(notePath string) bool {
	for _, dir := range p.ExcludedDirectories {
		if UnderDir(notePath, dir) {
			return true
		}
	}
	return false
}

// UnderDir reports whether notePath has a directory segment sequence equal
// to dir, starting at the vault root or at any depth. A blank dir matches
// nothing.
func UnderDir(notePath, dir string) bool {
	notePath = strings.TrimPrefix(path.Clean("/"+notePath), "/")
	d := strings.Trim(strings.ReplaceAll(dir, "\\", "/"), "/")
	if d == "" {
		return false
	}
	return strings.HasPrefix(notePath, d+"/") || strings.Contains(notePath, "/"+d+"/")
}

// IsHome reports whether notePath is the profile's home note.
func (p *Profile) IsHome(notePath string) bool {
	return p.HomeNotePath != "" && path.Clean(p.HomeNotePath) == path.Clean(notePath)
}

// Remote reports whether the profile uploads to an object store.
func (p *Profile) Remote() bool {
	return p.Mechanism == MechanismAWSCLI || p.Mechanism == MechanismS3
}

// NoteURL returns the public address of a note with the given UID.
func (p *Profile) NoteURL(uid string) string {
	return strings.TrimRight(p.BaseURL, "/") + "/#u=" + uid
}
