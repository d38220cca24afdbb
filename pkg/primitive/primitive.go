// Package primitive validates FHIR primitive values against their textual grammar.
package primitive

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/gofhir/schemacheck/pkg/fault"
)

// Func validates a single primitive value found at path.
type Func func(value any, path string) error

// FHIR primitive type tags.
const (
	TypeBase64Binary = "base64Binary"
	TypeBoolean      = "boolean"
	TypeCanonical    = "canonical"
	TypeCode         = "code"
	TypeDate         = "date"
	TypeDateTime     = "dateTime"
	TypeDecimal      = "decimal"
	TypeID           = "id"
	TypeInstant      = "instant"
	TypeInteger      = "integer"
	TypeInteger64    = "integer64"
	TypeMarkdown     = "markdown"
	TypeOID          = "oid"
	TypePositiveInt  = "positiveInt"
	TypeString       = "string"
	TypeTime         = "time"
	TypeUnsignedInt  = "unsignedInt"
	TypeURI          = "uri"
	TypeURL          = "url"
	TypeUUID         = "uuid"
	TypeXHTML        = "xhtml"
)

// Grammar of each primitive, from the FHIR R4 datatype definitions.
var (
	base64Regex    = regexp.MustCompile(`^(\s*([0-9a-zA-Z+=/]){4}\s*)+$`)
	canonicalRegex = regexp.MustCompile(`^\S*$`)
	codeRegex      = regexp.MustCompile(`^[^\s]+(\s[^\s]+)*$`)
	dateRegex      = regexp.MustCompile(`^([0-9]([0-9]([0-9][1-9]|[1-9]0)|[1-9]00)|[1-9]000)(-(0[1-9]|1[0-2])(-(0[1-9]|[1-2][0-9]|3[0-1]))?)?$`)
	dateTimeRegex  = regexp.MustCompile(`^([0-9]([0-9]([0-9][1-9]|[1-9]0)|[1-9]00)|[1-9]000)(-(0[1-9]|1[0-2])(-(0[1-9]|[1-2][0-9]|3[0-1])(T([01][0-9]|2[0-3]):[0-5][0-9]:([0-5][0-9]|60)(\.[0-9]+)?(Z|(\+|-)((0[0-9]|1[0-3]):[0-5][0-9]|14:00)))?)?)?$`)
	decimalRegex   = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)
	idRegex        = regexp.MustCompile(`^[A-Za-z0-9\-.]{1,64}$`)
	instantRegex   = regexp.MustCompile(`^([0-9]([0-9]([0-9][1-9]|[1-9]0)|[1-9]00)|[1-9]000)-(0[1-9]|1[0-2])-(0[1-9]|[1-2][0-9]|3[0-1])T([01][0-9]|2[0-3]):[0-5][0-9]:([0-5][0-9]|60)(\.[0-9]+)?(Z|(\+|-)((0[0-9]|1[0-3]):[0-5][0-9]|14:00))$`)
	integerRegex   = regexp.MustCompile(`^-?(0|[1-9][0-9]*)$`)
	integer64Regex = regexp.MustCompile(`^-?(0|[1-9][0-9]*)$`)
	markdownRegex  = regexp.MustCompile(`^[ \r\n\t\S]+$`)
	oidRegex       = regexp.MustCompile(`^urn:oid:[0-2](\.(0|[1-9][0-9]*))+$`)
	positiveRegex  = regexp.MustCompile(`^\+?[1-9][0-9]*$`)
	stringRegex    = regexp.MustCompile(`^[ \r\n\t\S]+$`)
	timeRegex      = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]:([0-5][0-9]|60)(\.[0-9]+)?$`)
	unsignedRegex  = regexp.MustCompile(`^(0|[1-9][0-9]*)$`)
	uriRegex       = regexp.MustCompile(`^\S*$`)
	urlRegex       = regexp.MustCompile(`^\S*$`)
	uuidRegex      = regexp.MustCompile(`^urn:uuid:[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

const (
	minInt32 = math.MinInt32
	maxInt32 = math.MaxInt32
)

var validators = map[string]Func{
	TypeBase64Binary: stringFormat(TypeBase64Binary, base64Regex),
	TypeBoolean:      validateBoolean,
	TypeCanonical:    stringFormat(TypeCanonical, canonicalRegex),
	TypeCode:         stringFormat(TypeCode, codeRegex),
	TypeDate:         stringFormat(TypeDate, dateRegex),
	TypeDateTime:     stringFormat(TypeDateTime, dateTimeRegex),
	TypeDecimal:      validateDecimal,
	TypeID:           stringFormat(TypeID, idRegex),
	TypeInstant:      stringFormat(TypeInstant, instantRegex),
	TypeInteger:      integerRange(TypeInteger, integerRegex, minInt32, maxInt32),
	TypeInteger64:    validateInteger64,
	TypeMarkdown:     validateMarkdown,
	TypeOID:          stringFormat(TypeOID, oidRegex),
	TypePositiveInt:  integerRange(TypePositiveInt, positiveRegex, 1, maxInt32),
	TypeString:       validateString,
	TypeTime:         stringFormat(TypeTime, timeRegex),
	TypeUnsignedInt:  integerRange(TypeUnsignedInt, unsignedRegex, 0, maxInt32),
	TypeURI:          stringFormat(TypeURI, uriRegex),
	TypeURL:          stringFormat(TypeURL, urlRegex),
	TypeUUID:         validateUUID,
	TypeXHTML:        validateXHTML,
}

// Lookup returns the validator for a primitive tag.
func Lookup(tag string) (Func, bool) {
	fn, ok := validators[tag]
	return fn, ok
}

// IsPrimitive reports whether tag names a primitive type.
func IsPrimitive(tag string) bool {
	_, ok := validators[tag]
	return ok
}

// Tags returns every primitive tag in sorted order.
func Tags() []string {
	tags := make([]string, 0, len(validators))
	for t := range validators {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// validate checks value against the grammar of tag. Unknown tags are accepted.
func validate(tag string, value any, path string) error {
	fn, ok := validators[tag]
	if !ok {
		return nil
	}
	return fn(value, path)
}

func stringFormat(typeTag string, re *regexp.Regexp) Func {
	return func(value any, path string) error {
		s, ok := value.(string)
		if !ok {
			return fault.Format(path, describe(value), typeTag, "value must be a string")
		}
		if !re.MatchString(s) {
			return fault.Format(path, s, typeTag, "")
		}
		return nil
	}
}

func validateBoolean(value any, path string) error {
	if _, ok := value.(bool); !ok {
		return fault.Format(path, describe(value), TypeBoolean, "value must be a boolean")
	}
	return nil
}

// integerRange checks the lexical form first, then the numeric bounds.
func integerRange(typeTag string, re *regexp.Regexp, lo, hi int64) Func {
	return func(value any, path string) error {
		text, ok := numberText(value)
		if !ok {
			return fault.Format(path, describe(value), typeTag, "value must be a number")
		}
		if !re.MatchString(text) {
			return fault.Format(path, text, typeTag, "")
		}
		n, err := strconv.ParseInt(strings.TrimPrefix(text, "+"), 10, 64)
		if err != nil || n < lo || n > hi {
			return fault.Format(path, text, typeTag, fmt.Sprintf("out of range [%d, %d]", lo, hi))
		}
		return nil
	}
}

// validateInteger64 accepts the JSON string form as well as plain numbers.
func validateInteger64(value any, path string) error {
	text, ok := value.(string)
	if !ok {
		text, ok = numberText(value)
	}
	if !ok {
		return fault.Format(path, describe(value), TypeInteger64, "value must be a number or string")
	}
	if !integer64Regex.MatchString(text) {
		return fault.Format(path, text, TypeInteger64, "")
	}
	if _, err := strconv.ParseInt(text, 10, 64); err != nil {
		return fault.Format(path, text, TypeInteger64, fmt.Sprintf("out of range [%d, %d]", int64(math.MinInt64), int64(math.MaxInt64)))
	}
	return nil
}

func validateDecimal(value any, path string) error {
	text, ok := numberText(value)
	if !ok {
		return fault.Format(path, describe(value), TypeDecimal, "value must be a number")
	}
	if !decimalRegex.MatchString(text) {
		return fault.Format(path, text, TypeDecimal, "")
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return fault.Format(path, text, TypeDecimal, "out of range")
	}
	return nil
}

func validateString(value any, path string) error {
	s, ok := value.(string)
	if !ok {
		return fault.Format(path, describe(value), TypeString, "value must be a string")
	}
	if !utf8.ValidString(s) {
		return fault.Format(path, s, TypeString, "invalid UTF-8")
	}
	if !stringRegex.MatchString(s) {
		return fault.Format(path, s, TypeString, "")
	}
	return nil
}

func validateMarkdown(value any, path string) error {
	s, ok := value.(string)
	if !ok {
		return fault.Format(path, describe(value), TypeMarkdown, "value must be a string")
	}
	if !utf8.ValidString(s) || !markdownRegex.MatchString(s) {
		return fault.Format(path, s, TypeMarkdown, "")
	}
	return nil
}

func validateUUID(value any, path string) error {
	s, ok := value.(string)
	if !ok {
		return fault.Format(path, describe(value), TypeUUID, "value must be a string")
	}
	if !uuidRegex.MatchString(s) {
		return fault.Format(path, s, TypeUUID, "expected urn:uuid: followed by a lowercase UUID")
	}
	if _, err := uuid.Parse(strings.TrimPrefix(s, "urn:uuid:")); err != nil {
		return fault.Format(path, s, TypeUUID, err.Error())
	}
	return nil
}

func validateXHTML(value any, path string) error {
	s, ok := value.(string)
	if !ok {
		return fault.Format(path, describe(value), TypeXHTML, "value must be a string")
	}
	if !strings.HasPrefix(strings.TrimSpace(s), "<div") {
		return fault.Format(path, s, TypeXHTML, "xhtml must start with a <div> element")
	}
	return nil
}

// numberText returns the decimal text of a JSON number. Integral floats are
// rendered without exponent so 22125503 does not become 2.2125503e+07.
func numberText(value any) (string, bool) {
	switch v := value.(type) {
	case json.Number:
		return v.String(), true
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return "", false
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case int:
		return strconv.FormatInt(int64(v), 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint32:
		return strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	default:
		return "", false
	}
}

func describe(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%v", v)
	}
}
