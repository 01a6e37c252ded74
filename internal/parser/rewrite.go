package parser

import (
	"bytes"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

const delim = "---"

// SetFields rewrites the leading metadata block of data. A nil value removes
// the key. Untouched keys keep their order and the body is preserved byte for byte.
func SetFields(data []byte, updates map[string]any) ([]byte, error) {
	block, body, found := locateBlock(data)

	var doc yaml.Node
	if found && len(bytes.TrimSpace(block)) > 0 {
		if err := yaml.Unmarshal(block, &doc); err != nil {
			return nil, fmt.Errorf("parser: metadata block: %w", err)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parser: metadata block is not a mapping")
	}

	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := updates[k]
		idx := -1
		for i := 0; i+1 < len(root.Content); i += 2 {
			if root.Content[i].Value == k {
				idx = i
				break
			}
		}
		if v == nil {
			if idx >= 0 {
				root.Content = append(root.Content[:idx], root.Content[idx+2:]...)
			}
			continue
		}
		var val yaml.Node
		if err := val.Encode(v); err != nil {
			return nil, fmt.Errorf("parser: encode %s: %w", k, err)
		}
		if idx >= 0 {
			root.Content[idx+1] = &val
			continue
		}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			&val,
		)
	}

	if len(root.Content) == 0 {
		return body, nil
	}

	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("parser: encode metadata: %w", err)
	}
	_ = enc.Close()
	buf.WriteString(delim + "\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

// locateBlock returns the YAML between the leading delimiters and everything
// after the closing delimiter line. found is false when data has no block.
func locateBlock(data []byte) (block, body []byte, found bool) {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim+"\n")) && !bytes.HasPrefix(trimmed, []byte(delim+"\r\n")) {
		return nil, data, false
	}
	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, data, false
	}
	block = rest[:idx]
	after := rest[idx+1+len(delim):]
	if nl := bytes.IndexByte(after, '\n'); nl >= 0 {
		if len(bytes.TrimSpace(after[:nl])) != 0 {
			return nil, data, false
		}
		after = after[nl+1:]
	} else if len(bytes.TrimSpace(after)) != 0 {
		return nil, data, false
	} else {
		after = nil
	}
	return block, after, true
}
