package definitions

import "github.com/gofhir/schemacheck/pkg/schema"

var (
	administrativeGender = []string{"male", "female", "other", "unknown"}
	observationStatus    = []string{
		"registered", "preliminary", "final", "amended", "corrected",
		"cancelled", "entered-in-error", "unknown",
	}
)

func ref(name string, kinds ...string) schema.Attribute {
	return f(name, schema.TagReference).Targets(schema.Kinds(kinds...))
}

func patient() []*schema.Schema {
	return []*schema.Schema{
		resource("Patient",
			f("identifier", "Identifier").Array(),
			f("active", "boolean"),
			f("name", "HumanName").Array(),
			f("telecom", "ContactPoint").Array(),
			f("gender", "code").Enum(administrativeGender...),
			f("birthDate", "date"),
			f("deceasedBoolean", "boolean"),
			f("deceasedDateTime", "dateTime"),
			f("address", "Address").Array(),
			f("maritalStatus", "CodeableConcept"),
			f("multipleBirthBoolean", "boolean"),
			f("multipleBirthInteger", "integer"),
			f("photo", "Attachment").Array(),
			f("contact", "Patient.contact").Array(),
			f("communication", "Patient.communication").Array(),
			ref("generalPractitioner", "Organization", "Practitioner", "PractitionerRole").Array(),
			ref("managingOrganization", "Organization"),
			f("link", "Patient.link").Array(),
		),
		backbone("Patient.contact",
			f("relationship", "CodeableConcept").Array(),
			f("name", "HumanName"),
			f("telecom", "ContactPoint").Array(),
			f("address", "Address"),
			f("gender", "code").Enum(administrativeGender...),
			ref("organization", "Organization"),
			f("period", "Period"),
		),
		backbone("Patient.communication",
			f("language", "CodeableConcept").Required(),
			f("preferred", "boolean"),
		),
		backbone("Patient.link",
			ref("other", "Patient", "RelatedPerson").Required(),
			f("type", "code").Required().Enum("replaced-by", "replaces", "refer", "seealso"),
		),
	}
}

// observationValues are the value[x] variants shared by Observation and its components.
func observationValues() []schema.Attribute {
	return []schema.Attribute{
		f("valueQuantity", "Quantity"),
		f("valueCodeableConcept", "CodeableConcept"),
		f("valueString", "string"),
		f("valueBoolean", "boolean"),
		f("valueInteger", "integer"),
		f("valueTime", "time"),
		f("valueDateTime", "dateTime"),
		f("valuePeriod", "Period"),
	}
}

func observation() []*schema.Schema {
	fields := []schema.Attribute{
		f("identifier", "Identifier").Array(),
		ref("basedOn", "CarePlan", "DeviceRequest", "ImmunizationRecommendation",
			"MedicationRequest", "NutritionOrder", "ServiceRequest").Array(),
		ref("partOf", "MedicationAdministration", "MedicationDispense", "MedicationStatement",
			"Procedure", "Immunization", "ImagingStudy").Array(),
		f("status", "code").Required().Enum(observationStatus...),
		f("category", "CodeableConcept").Array(),
		f("code", "CodeableConcept").Required(),
		ref("subject", "Patient", "Group", "Device", "Location"),
		f("focus", schema.TagReference).Targets(schema.AnyResource()).Array(),
		ref("encounter", "Encounter"),
		f("effectiveDateTime", "dateTime"),
		f("effectivePeriod", "Period"),
		f("effectiveInstant", "instant"),
		f("issued", "instant"),
		ref("performer", "Practitioner", "PractitionerRole", "Organization",
			"CareTeam", "Patient", "RelatedPerson").Array(),
	}
	fields = append(fields, observationValues()...)
	fields = append(fields,
		f("dataAbsentReason", "CodeableConcept"),
		f("interpretation", "CodeableConcept").Array(),
		f("bodySite", "CodeableConcept"),
		f("method", "CodeableConcept"),
		ref("specimen", "Specimen"),
		ref("device", "Device", "DeviceMetric"),
		f("referenceRange", "Observation.referenceRange").Array(),
		ref("hasMember", "Observation", "QuestionnaireResponse", "MolecularSequence").Array(),
		ref("derivedFrom", "DocumentReference", "ImagingStudy", "Media",
			"QuestionnaireResponse", "Observation", "MolecularSequence").Array(),
		f("component", "Observation.component").Array(),
	)

	component := []schema.Attribute{f("code", "CodeableConcept").Required()}
	component = append(component, observationValues()...)
	component = append(component,
		f("dataAbsentReason", "CodeableConcept"),
		f("interpretation", "CodeableConcept").Array(),
		f("referenceRange", "Observation.referenceRange").Array(),
	)

	return []*schema.Schema{
		resource("Observation", fields...),
		backbone("Observation.referenceRange",
			f("low", "Quantity"),
			f("high", "Quantity"),
			f("type", "CodeableConcept"),
			f("appliesTo", "CodeableConcept").Array(),
			f("text", "string"),
		),
		backbone("Observation.component", component...),
	}
}

func organization() []*schema.Schema {
	return []*schema.Schema{
		resource("Organization",
			f("identifier", "Identifier").Array(),
			f("active", "boolean"),
			f("type", "CodeableConcept").Array(),
			f("name", "string"),
			f("alias", "string").Array(),
			f("telecom", "ContactPoint").Array(),
			f("address", "Address").Array(),
			ref("partOf", "Organization"),
			ref("endpoint", "Endpoint").Array(),
		),
	}
}
