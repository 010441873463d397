// Package keyword provides full-text search over chunks, partitioned by owner.
package keyword

import (
	"github.com/blevesearch/bleve/v2"
	keywordanalyzer "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/hyperjump/docuchat/internal/models"
)

// Field names of an indexed chunk.
const (
	fieldOwner = "owner_id"
	fieldFile  = "file_id"
	fieldName  = "name"
	fieldText  = "text"
)

const chunkType = "chunk"

// chunkDocument is what Bleve stores for one chunk. The chunk id is the document id.
func chunkDocument(c models.Chunk) map[string]interface{} {
	return map[string]interface{}{
		fieldOwner: c.Source.OwnerID,
		fieldFile:  c.Source.FileID,
		fieldName:  c.Source.Name,
		fieldText:  c.Text,
	}
}

// newMapping indexes owner and file ids verbatim for filtering and the text with the standard
// analyzer (lowercase, no stemming) so identifiers like invoice numbers match as written.
func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	doc := bleve.NewDocumentMapping()
	ids := bleve.NewTextFieldMapping()
	ids.Analyzer = keywordanalyzer.Name
	ids.IncludeInAll = false
	doc.AddFieldMappingsAt(fieldOwner, ids)
	doc.AddFieldMappingsAt(fieldFile, ids)

	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	doc.AddFieldMappingsAt(fieldText, text)
	doc.AddFieldMappingsAt(fieldName, text)

	im.AddDocumentMapping(chunkType, doc)
	im.DefaultType = chunkType
	im.DefaultMapping = doc
	return im
}
