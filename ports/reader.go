package ports

import (
	"github.com/derekpowell/cava-rep/domain/dataset"
)

// DataReader loads wide-format participant records from a tabular source.
// Implementations validate required columns and apply reverse-coding
// corrections; they do not filter to the analysis set.
type DataReader interface {
	Read() ([]dataset.Participant, error)
}
