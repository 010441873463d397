// Package e2e runs the ingestion pipeline and the chat executor together against in-process
// storage, the hashed mock embedder and a scripted generator.
package e2e

import (
	"fmt"
	"strings"
)

// CorpusDocument is one file of the corpus, owned by a single user.
type CorpusDocument struct {
	Owner    string
	Filename string
	Content  string
	Phrase   string
}

// QueryCase is a question whose retrieved sources must include Filename.
type QueryCase struct {
	Owner    string
	Query    string
	Filename string
}

// Corpus holds documents spread over several owners and the questions asked of them.
type Corpus struct {
	Owners    []string
	Documents []CorpusDocument
	Cases     []QueryCase
}

var corpusTopics = []struct {
	phrase  string
	content string
}{
	{"Kubernetes container orchestration", "Kubernetes container orchestration automates deployment and scaling of workloads across a cluster."},
	{"PostgreSQL relational database", "PostgreSQL relational database supports JSON columns, window functions and full-text search."},
	{"Redis in-memory cache", "Redis in-memory cache keeps sessions and hot keys close to the application."},
	{"Terraform infrastructure provisioning", "Terraform infrastructure provisioning describes cloud resources declaratively in HCL files."},
	{"Prometheus monitoring metrics", "Prometheus monitoring metrics are scraped over HTTP and stored as time series."},
	{"OAuth authorization grants", "OAuth authorization grants let a client act on behalf of a resource owner."},
	{"Kafka event streaming", "Kafka event streaming persists ordered partitions that consumers read at their own pace."},
	{"Nginx reverse proxy", "Nginx reverse proxy terminates TLS and balances requests between upstream servers."},
	{"bcrypt password hashing", "bcrypt password hashing is slow on purpose and embeds a per-password salt."},
	{"blue-green deployment", "blue-green deployment keeps two production environments and flips traffic between them."},
	{"sourdough bread baking", "sourdough bread baking needs an active starter, a long fermentation and a very hot oven."},
	{"marathon training plan", "marathon training plan alternates long slow runs with tempo sessions and rest weeks."},
	{"vegetable garden compost", "vegetable garden compost mixes green kitchen scraps with brown leaves and needs turning."},
	{"watercolor painting techniques", "watercolor painting techniques include wet on wet washes and lifting pigment with a sponge."},
	{"chess opening repertoire", "chess opening repertoire choices like the Sicilian defence shape the middlegame plans."},
	{"mortgage interest rates", "mortgage interest rates follow central bank decisions and the borrower credit profile."},
	{"solar panel installation", "solar panel installation requires roof orientation checks and an inverter sized to the array."},
	{"espresso grind size", "espresso grind size controls extraction time, finer grinds slow the shot down."},
}

// BuildCorpus spreads every topic over owners round-robin. Each document carries a unique phrase
// so questions can assert where the answer came from.
func BuildCorpus(owners ...string) *Corpus {
	if len(owners) == 0 {
		owners = []string{"alice", "bob", "carol"}
	}
	c := &Corpus{Owners: owners}
	for i, topic := range corpusTopics {
		owner := owners[i%len(owners)]
		ext := ".txt"
		if i%2 == 1 {
			ext = ".md"
		}
		doc := CorpusDocument{
			Owner:    owner,
			Filename: fmt.Sprintf("%02d-%s%s", i, slug(topic.phrase), ext),
			Content:  topic.content,
			Phrase:   topic.phrase,
		}
		c.Documents = append(c.Documents, doc)
		c.Cases = append(c.Cases, QueryCase{
			Owner:    owner,
			Query:    "what do my notes say about " + topic.phrase + "?",
			Filename: doc.Filename,
		})
	}
	return c
}

// DocumentsOf returns the documents owned by owner.
func (c *Corpus) DocumentsOf(owner string) []CorpusDocument {
	var out []CorpusDocument
	for _, d := range c.Documents {
		if d.Owner == owner {
			out = append(out, d)
		}
	}
	return out
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "-")
}
