package mcpserver

// SnippetFormatContract describes how snippets are rendered by read_snippet
// and how search queries are interpreted.
const SnippetFormatContract = `# snix Snippet Format

Snippets live in notebooks. Notebooks nest; a notebook name is unique among
its siblings (case-insensitive).

## Rendered snippet

` + "```" + `markdown
---
id: 3f0c2b1e-...                 # stable id, use it with read_snippet
title: Retry with backoff        # REQUIRED
description: exponential, capped # OPTIONAL
language: go                     # OPTIONAL, lowercase
tags:                            # OPTIONAL, lowercase
  - http
  - resilience
favorite: true                   # OPTIONAL
created_at: 2026-03-01T12:00:00Z
updated_at: 2026-03-02T08:30:00Z
---
# Retry with backoff

` + "````" + `go
for attempt := 0; attempt < 5; attempt++ { ... }
` + "````" + `
` + "```" + `

The body is the content of the single fenced block. The fence is always
longer than any backtick run inside the body.

## Search syntax

- Plain words must all match the title, the body or a tag.
- Title matches rank above body matches; an exact title ranks first.
- ` + "`" + `#tag` + "`" + ` words filter to snippets carrying that tag.
- An empty query lists every snippet, favorites first.

## Read-only access

These tools never modify the store and never count as opening a snippet,
so they do not change the recent list.
`
