package mcpserver

// NoteFormatContract describes the note metadata folio reads when publishing.
const NoteFormatContract = `# folio Note Format

folio publishes Markdown notes whose YAML frontmatter opts them into one or
more publish profiles.

## Frontmatter

` + "```" + `markdown
---
title: Human-readable title    # OPTIONAL – defaults to the file name
publish-contexts:              # profile ids the note is published to
  - blog
  - wiki
uid: 3f9aVQ1dS0ux5w2b9nRk7A    # written by folio on first publish, never edit
---
` + "```" + `

## Rules

1. **publish-contexts** is a YAML list of profile ids. A delimited string
   (` + "`" + `blog, wiki` + "`" + `) is accepted but reported as needing correction.
2. A note without publish-contexts is never published and never gets a uid.
3. **uid** is permanent. Moving or renaming the note keeps its published address.
4. Notes under a profile's excluded directories are never published to it,
   whatever their publish-contexts say.

## Links

- ` + "`" + `[[target]]` + "`" + `, ` + "`" + `[[target|alias]]` + "`" + ` and ` + "`" + `[[target#heading]]` + "`" + ` reference other notes.
- A link to a note published to the same profile becomes a link to its uid.
- A link to any other note is rendered as plain text, so unpublished notes are
  never revealed.
- The display text is the alias, else the heading, else the target.
`
