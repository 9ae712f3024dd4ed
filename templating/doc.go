// Package templating defines the Engine contract used by the page
// pre-processor and ships two implementations.
//
// GoEngine wraps html/template: filters and helpers become template
// functions, fragments are added to a base set with AddParseTree, and each
// render parses the page into a clone of that set so the registered
// fragments are never mutated by execution.
//
// StampEngine wraps valyala/fasttemplate with configurable delimiters
// (default "{{" and "}}"). Tags hold a dotted data key optionally piped
// through filters ("{{user.name|upper}}"), a partial inclusion
// ("{{> header/top}}") or a helper call ("{{greet user.name \"!\"}}").
// Unknown keys are kept verbatim unless missingKey says otherwise.
//
// Engine options are an opaque map decoded into Config with
// mitchellh/mapstructure.
package templating
