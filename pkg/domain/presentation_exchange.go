/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package domain

// PresentationDefinition describes the credentials a Verifier is requesting,
// per https://identity.foundation/presentation-exchange/.
type PresentationDefinition struct {
	ID                     string                   `json:"id"`
	SubmissionRequirements []SubmissionRequirements `json:"submission_requirements,omitempty"`
	InputDescriptors       []InputDescriptor        `json:"input_descriptors,omitempty"`
}

// SubmissionRequirements groups input descriptors under a selection rule.
type SubmissionRequirements struct {
	Name    string `json:"name,omitempty"`
	Purpose string `json:"purpose,omitempty"`
	Rule    Rule   `json:"rule,omitempty"`
}

// Rule is a submission requirement rule.
type Rule struct {
	Type  string   `json:"type,omitempty"`
	Count int      `json:"count,omitempty"`
	From  []string `json:"from,omitempty"`
}

// InputDescriptor names one credential the Verifier wants, and how to
// recognize it (ZkpKeys, when present on the owning Presentation, is keyed
// by this descriptor's ID).
type InputDescriptor struct {
	ID          string      `json:"id"`
	Group       []string    `json:"group,omitempty"`
	Name        string      `json:"name,omitempty"`
	Purpose     string      `json:"purpose,omitempty"`
	Format      Format      `json:"format,omitempty"`
	Constraints Constraints `json:"constraints,omitempty"`
}

// Format declares the accepted token formats for an input descriptor (or,
// at the top level of a PresentationDefinition, for the whole request).
type Format struct {
	SDJwt   *AlgFormat `json:"vc+sd-jwt,omitempty"`
	MsoMdoc *AlgFormat `json:"mso_mdoc,omitempty"`
}

// AlgFormat names the accepted signing algorithms for a Format entry.
type AlgFormat struct {
	Alg []string `json:"alg,omitempty"`
}

// Constraints restrict which claims of a matched credential the Wallet may
// disclose.
type Constraints struct {
	LimitDisclosure string  `json:"limit_disclosure,omitempty"`
	Fields          []Field `json:"fields,omitempty"`
}

// Field is one constraint path expression.
type Field struct {
	Path    []string `json:"path,omitempty"`
	Purpose string   `json:"purpose,omitempty"`
	Filter  *Filter  `json:"filter,omitempty"`
}

// Filter is a JSON-schema-style filter applied to a Field's matched value.
type Filter struct {
	Type      string `json:"type,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
	MinLength int    `json:"minLength,omitempty"`
	MaxLength int    `json:"maxLength,omitempty"`
}

// PresentationSubmission is the Wallet's map of the token(s) it returned
// back onto the PresentationDefinition's input descriptors:
// https://identity.foundation/presentation-exchange/#presentation-submission.
type PresentationSubmission struct {
	ID            string                   `json:"id,omitempty"`
	DefinitionID  string                   `json:"definition_id,omitempty"`
	DescriptorMap []InputDescriptorMapping `json:"descriptor_map"`
}

// InputDescriptorMapping maps an InputDescriptor to a token pointed to by
// the JSONPath in Path, and names the wire Format it was submitted in.
type InputDescriptorMapping struct {
	ID     string `json:"id"`
	Format string `json:"format"`
	Path   string `json:"path"`
}

// Well-known descriptor_map format identifiers, per §4.4 step 6.
const (
	FormatSDJwt      = "vc+sd-jwt"
	FormatMsoMdoc    = "mso_mdoc"
	FormatSDJwtZKP   = "vc+sd-jwt+zkp"
	FormatMsoMdocZKP = "mso_mdoc+zkp"
)
