package definitions

import (
	"github.com/gofhir/schemacheck/pkg/primitive"
	"github.com/gofhir/schemacheck/pkg/schema"
)

// f is shorthand for schema.Field in the tables below.
var f = schema.Field

// with appends the "_field" siblings of every primitive field.
func with(fields ...schema.Attribute) []schema.Attribute {
	return schema.WithSiblings(primitive.IsPrimitive, fields...)
}

func element(kind string, fields ...schema.Attribute) *schema.Schema {
	return schema.New(kind, schema.TierElement, with(fields...)...)
}

func backbone(kind string, fields ...schema.Attribute) *schema.Schema {
	return schema.New(kind, schema.TierBackbone, with(fields...)...)
}

func resource(kind string, fields ...schema.Attribute) *schema.Schema {
	return schema.New(kind, schema.TierResource, with(fields...)...)
}

// extensionValueTypes are the value[x] variants accepted on Extension.
var extensionValueTypes = []string{
	"base64Binary", "boolean", "canonical", "code", "date", "dateTime", "decimal",
	"id", "instant", "integer", "markdown", "oid", "positiveInt", "string", "time",
	"unsignedInt", "uri", "url", "uuid",
	"Address", "Attachment", "CodeableConcept", "Coding", "ContactPoint",
	"HumanName", "Identifier", "Period", "Quantity", "Reference",
}

func extensionSchema() *schema.Schema {
	fields := []schema.Attribute{f("url", "uri").Required()}
	for _, t := range extensionValueTypes {
		fields = append(fields, f("value"+upperFirst(t), t))
	}
	return element(schema.TagExtension, fields...)
}

func datatypes() []*schema.Schema {
	return []*schema.Schema{
		element(schema.TagElement),
		extensionSchema(),
		element("Meta",
			f("versionId", "id"),
			f("lastUpdated", "instant"),
			f("source", "uri"),
			f("profile", "canonical").Array(),
			f("security", "Coding").Array(),
			f("tag", "Coding").Array(),
		),
		element("Narrative",
			f("status", "code").Required().Enum("generated", "extensions", "additional", "empty"),
			f("div", "xhtml").Required(),
		),
		element("Period",
			f("start", "dateTime"),
			f("end", "dateTime"),
		),
		element("Attachment",
			f("contentType", "code"),
			f("language", "code"),
			f("data", "base64Binary"),
			f("url", "url"),
			f("size", "unsignedInt"),
			f("hash", "base64Binary"),
			f("title", "string"),
			f("creation", "dateTime"),
		),
		element("ContactPoint",
			f("system", "code").Enum("phone", "fax", "email", "pager", "url", "sms", "other"),
			f("value", "string"),
			f("use", "code").Enum("home", "work", "temp", "old", "mobile"),
			f("rank", "positiveInt"),
			f("period", "Period"),
		),
		element("Quantity",
			f("value", "decimal"),
			f("comparator", "code").Enum("<", "<=", ">=", ">"),
			f("unit", "string"),
			f("system", "uri"),
			f("code", "code"),
		),
		element("Coding",
			f("system", "uri"),
			f("version", "string"),
			f("code", "code"),
			f("display", "string"),
			f("userSelected", "boolean"),
		),
		element("CodeableConcept",
			f("coding", "Coding").Array(),
			f("text", "string"),
		),
		element("Identifier",
			f("use", "code").Enum("usual", "official", "temp", "secondary", "old"),
			f("type", "CodeableConcept"),
			f("system", "uri"),
			f("value", "string"),
			f("period", "Period"),
			f("assigner", schema.TagReference).Targets(schema.Kinds("Organization")),
		),
		element("HumanName",
			f("use", "code").Enum("usual", "official", "temp", "nickname", "anonymous", "old", "maiden"),
			f("text", "string"),
			f("family", "string"),
			f("given", "string").Array(),
			f("prefix", "string").Array(),
			f("suffix", "string").Array(),
			f("period", "Period"),
		),
		element("Address",
			f("use", "code").Enum("home", "work", "temp", "old", "billing"),
			f("type", "code").Enum("postal", "physical", "both"),
			f("text", "string"),
			f("line", "string").Array(),
			f("city", "string"),
			f("district", "string"),
			f("state", "string"),
			f("postalCode", "string"),
			f("country", "string"),
			f("period", "Period"),
		),
		element(schema.TagReference,
			f("reference", "string"),
			f("type", "uri"),
			f("identifier", "Identifier"),
			f("display", "string"),
		),
	}
}

func upperFirst(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
