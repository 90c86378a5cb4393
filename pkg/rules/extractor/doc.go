// Package extractor turns free-form policy text into rules.
//
// Extraction is heuristic. The text is scanned line by line while tracking a
// single piece of state, the current section label. Header lines (all-caps
// lines of at least five characters, or lines starting with an outline number
// such as "2.") update the section and never become rules. Every other
// non-blank line is tested against a fixed, ordered pattern table; the first
// matching pattern decides the rule's subcategory and only one rule is
// produced per line.
//
// The compliance level, the constraints and the category are derived
// independently of the subcategory:
//
//   - level: mandatory, then prohibited (filed as mandatory), then
//     recommended, else required
//   - constraints: retention, encryption and PII patterns are all tested, so
//     one line may carry several constraints
//   - category: governance keywords, then risk keywords, else compliance
//
// Identifiers are a truncated SHA-256 of "source:index:line" with the line
// NFC-normalized first. Truncation makes collisions possible; an extraction
// run that produces the same identifier twice fails with
// *rules.AmbiguousRuleIDError.
package extractor
