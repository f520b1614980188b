package misc

import (
	"encoding/csv"
	"errors"
	"io"
	"math/rand"

	log "github.com/sirupsen/logrus"
)

// Quote is one line of the quotes CSV: TEXT;AUTHOR;TAG.
type Quote struct {
	Text   string `json:"text"`
	Author string `json:"author"`
	Tag    string `json:"tag"`
}

// QuotesManager holds the training quotes shown on the session start screen.
// The set is fixed after loading, so RandomQuote needs no locking.
type QuotesManager struct {
	quotes []Quote
}

func NewQuoteManager(quotesCsvReader *csv.Reader) (*QuotesManager, error) {
	quotesCsvReader.Comma = ';'
	quotesCsvReader.FieldsPerRecord = 3

	qm := &QuotesManager{}
	for {
		record, err := quotesCsvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		qm.quotes = append(qm.quotes, Quote{
			Text:   record[0],
			Author: record[1],
			Tag:    record[2],
		})
	}

	if len(qm.quotes) == 0 {
		return nil, errors.New("the quotes csv is empty")
	}

	log.Debugf("loaded %d training quotes", len(qm.quotes))
	return qm, nil
}

func (qm *QuotesManager) RandomQuote() Quote {
	return qm.quotes[rand.Intn(len(qm.quotes))]
}
