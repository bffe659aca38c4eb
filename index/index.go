package index

import (
	"os"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
)

const defaultIndexPath = "recent.bleve"

// Item is the indexed view of one recent download. All fields are searchable
// by their lowercase JSON tag names (e.g. '+uploader:somechannel').
type Item struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	FilePath    string `json:"filePath"`
	Quality     string `json:"quality,omitempty"`
	Uploader    string `json:"uploader,omitempty"`
	SizeBytes   float64
	DurationSec float64
	CompletedAt float64
}

// OpenOrCreateIndex opens an existing Bleve index or creates a new one if it
// doesn't exist.
func OpenOrCreateIndex(indexPath string) (bleve.Index, error) {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}

	idx, err := bleve.Open(indexPath)
	if err == bleve.ErrorIndexPathDoesNotExist {
		log.Infof("Creating new index at: %s", indexPath)
		mapping := bleve.NewIndexMapping()
		idx, err = bleve.New(indexPath, mapping)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else {
		log.Debugf("Opened existing index at: %s", indexPath)
	}
	return idx, nil
}

// IndexItem adds or updates an item in the Bleve index.
func IndexItem(idx bleve.Index, item Item) error {
	return idx.Index(item.ID, item)
}

// DeleteItem removes an item from the index by id.
func DeleteItem(idx bleve.Index, id string) error {
	return idx.Delete(id)
}

// SearchIndex performs a query-string search against the index.
func SearchIndex(idx bleve.Index, query string) (*bleve.SearchResult, error) {
	searchQuery := bleve.NewQueryStringQuery(query)
	searchRequest := bleve.NewSearchRequest(searchQuery)
	searchRequest.Fields = []string{"*"}
	return idx.Search(searchRequest)
}

// DeleteIndex removes the index directory. Use with caution!
func DeleteIndex(indexPath string) error {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}
	log.Infof("Deleting index at: %s", indexPath)
	return os.RemoveAll(indexPath)
}
