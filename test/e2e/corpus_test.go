package e2e

import (
	"strings"
	"testing"
)

func TestBuildCorpus_SpreadsOverOwners(t *testing.T) {
	c := BuildCorpus()
	if len(c.Documents) != len(corpusTopics) {
		t.Fatalf("documents = %d, want %d", len(c.Documents), len(corpusTopics))
	}
	total := 0
	for _, o := range c.Owners {
		n := len(c.DocumentsOf(o))
		if n == 0 {
			t.Errorf("owner %s has no documents", o)
		}
		total += n
	}
	if total != len(c.Documents) {
		t.Errorf("documents per owner sum to %d, want %d", total, len(c.Documents))
	}
}

func TestBuildCorpus_CasesPointAtTheirPhrase(t *testing.T) {
	c := BuildCorpus()
	byName := make(map[string]CorpusDocument)
	for _, d := range c.Documents {
		if _, dup := byName[d.Filename]; dup {
			t.Errorf("duplicate filename %s", d.Filename)
		}
		byName[d.Filename] = d
	}
	for _, tc := range c.Cases {
		doc, ok := byName[tc.Filename]
		if !ok {
			t.Fatalf("case %q points at unknown file %s", tc.Query, tc.Filename)
		}
		if doc.Owner != tc.Owner {
			t.Errorf("case %q owner %s, document owner %s", tc.Query, tc.Owner, doc.Owner)
		}
		if !strings.Contains(tc.Query, doc.Phrase) || !strings.Contains(doc.Content, doc.Phrase) {
			t.Errorf("phrase %q missing from query or content of %s", doc.Phrase, doc.Filename)
		}
	}
}
