package mcpserver

// FormatDescription describes the payload formats that LLM consumers read
// and write through the postwriter tools.
const FormatDescription = `# Postwriter Formats

The document is one markdown body preceded by an ordered list of typed
frontmatter fields.

## Field types

| type     | value                                  |
|----------|----------------------------------------|
| text     | string or null                         |
| number   | string holding the number, or null     |
| boolean  | true, false or null                    |
| date     | string (YYYY-MM-DD) or null            |
| datetime | string (ISO-8601) or null              |
| list     | array of strings or null               |

Changing a field's type converts its value: "true" becomes a boolean,
a list becomes null under any scalar type, and so on.

## Clipboard payload (render_markdown)

` + "```" + `markdown
---
title: "Hello"
draft: true
tags:
  - a
  - b
---

Body text.
` + "```" + `

Fields appear in order. Keys, text values and list items are quoted when
YAML would otherwise read them as another type. With legacy output nothing
is quoted and empty values print as null.

## Export (export_fields)

A JSON array ordered by position, without ids:

` + "```" + `json
[
  {
    "label": "title",
    "type": "text",
    "value": "Hello",
    "order": 0
  }
]
` + "```" + `

## Import (import_fields)

Accepts the export array, or a mapping with the array under yamlFields, in
JSON or YAML:

` + "```" + `yaml
yamlFields:
  - label: title
    type: text
    value: Hello
    order: 0
` + "```" + `

Missing entries default to label "", type text, value null and the entry's
position as order. Unknown types and non-integer orders are rejected, and
a rejected import leaves the document unchanged. Import replaces every
field; the body is kept.
`
