// Package content renders one campaign template for one recipient.
//
// Rendering is a fixed pipeline of small pure transforms:
//
//  1. placeholder substitution ({{name}}, {{email}}, ...)
//  2. full-document detection (a template that is already an HTML document
//     only gets link instrumentation)
//  3. markdown-style links and !btn! buttons
//  4. bare URL linkification
//  5. call-to-action buttons ("Learn more" lines)
//  6. per-recipient link instrumentation (URL fragment)
//  7. paragraph wrapping
//  8. document shell assembly
//  9. plain-text fallback derivation
//
// Nothing here performs I/O and nothing returns an error: bad input degrades
// to literal output plus a warning.
package content
