package server

import (
	"strings"

	"github.com/buildfund/onboard/pkg/api"
)

// requiredDocument is one document kind the onboarding flow insists on.
// Uploads are matched by filename keywords; anything unmatched still gets
// stored, it just doesn't satisfy a requirement.
type requiredDocument struct {
	Key      string
	Keywords []string
}

var requiredDocuments = []requiredDocument{
	{
		Key:      "proof_of_identity",
		Keywords: []string{"passport", "driving", "licence", "license", "identity", "id-card"},
	},
	{
		Key:      "proof_of_address",
		Keywords: []string{"utility", "bill", "bank", "statement", "address", "council-tax"},
	},
}

// classifyDocument maps an uploaded filename onto a required-document key,
// or returns "" when it satisfies none.
func classifyDocument(fileName string) string {
	name := strings.ToLower(fileName)
	for _, req := range requiredDocuments {
		for _, kw := range req.Keywords {
			if strings.Contains(name, kw) {
				return req.Key
			}
		}
	}
	return ""
}

// documentStatus reports which required documents are still missing given
// everything uploaded so far.
func documentStatus(docs []Document) api.DocumentStatus {
	have := make(map[string]bool, len(docs))
	for _, d := range docs {
		if d.DocKey != "" {
			have[d.DocKey] = true
		}
	}
	status := api.DocumentStatus{AllUploaded: true, MissingDocuments: []string{}}
	for _, req := range requiredDocuments {
		if !have[req.Key] {
			status.AllUploaded = false
			status.MissingDocuments = append(status.MissingDocuments, req.Key)
		}
	}
	return status
}
