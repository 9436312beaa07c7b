package persist

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/segmentio/ksuid"
)

// DBID represents a database ID
type DBID string

// CreationTime represents the time a record was created
type CreationTime time.Time

// LastUpdatedTime represents the time a record was last updated
type LastUpdatedTime time.Time

// NullString represents a string that may be null in the DB
type NullString string

// WalletAddress represents a blockchain wallet address
type WalletAddress string

// EmbeddingVector is a fixed-dimension embedding persisted as float8[]
type EmbeddingVector []float64

// GenerateID generates an application-wide unique ID
func GenerateID() DBID {
	id, err := ksuid.NewRandom()
	if err != nil {
		panic(err)
	}
	return DBID(id.String())
}

func (d DBID) String() string {
	return string(d)
}

// Time returns the time.Time representation of the CreationTime
func (c CreationTime) Time() time.Time {
	return time.Time(c)
}

// MarshalJSON returns the JSON representation of the CreationTime
func (c CreationTime) MarshalJSON() ([]byte, error) {
	return c.Time().MarshalJSON()
}

// UnmarshalJSON sets the CreationTime from the JSON representation
func (c *CreationTime) UnmarshalJSON(b []byte) error {
	t := time.Time{}
	err := json.Unmarshal(b, &t)
	if err != nil {
		return err
	}
	*c = CreationTime(t)
	return nil
}

// Scan implements the database/sql Scanner interface for the CreationTime type
func (c *CreationTime) Scan(value interface{}) error {
	if value == nil {
		*c = CreationTime{}
		return nil
	}
	*c = CreationTime(value.(time.Time))
	return nil
}

// Value implements the database/sql driver Valuer interface for the CreationTime type
func (c CreationTime) Value() (driver.Value, error) {
	if c.Time().IsZero() {
		return time.Now(), nil
	}
	return c.Time(), nil
}

// Time returns the time.Time representation of the LastUpdatedTime
func (l LastUpdatedTime) Time() time.Time {
	return time.Time(l)
}

// MarshalJSON returns the JSON representation of the LastUpdatedTime
func (l LastUpdatedTime) MarshalJSON() ([]byte, error) {
	return l.Time().MarshalJSON()
}

// UnmarshalJSON sets the LastUpdatedTime from the JSON representation
func (l *LastUpdatedTime) UnmarshalJSON(b []byte) error {
	t := time.Time{}
	err := json.Unmarshal(b, &t)
	if err != nil {
		return err
	}
	*l = LastUpdatedTime(t)
	return nil
}

// Scan implements the database/sql Scanner interface for the LastUpdatedTime type
func (l *LastUpdatedTime) Scan(value interface{}) error {
	if value == nil {
		*l = LastUpdatedTime{}
		return nil
	}
	*l = LastUpdatedTime(value.(time.Time))
	return nil
}

// Value implements the database/sql driver Valuer interface for the LastUpdatedTime type
func (l LastUpdatedTime) Value() (driver.Value, error) {
	if l.Time().IsZero() {
		return time.Now(), nil
	}
	return l.Time(), nil
}

func (n NullString) String() string {
	return string(n)
}

// Value implements the database/sql driver Valuer interface for the NullString type
func (n NullString) Value() (driver.Value, error) {
	if n.String() == "" {
		return "", nil
	}
	return strings.ToValidUTF8(strings.ReplaceAll(n.String(), "\\u0000", ""), ""), nil
}

// Scan implements the database/sql Scanner interface for the NullString type
func (n *NullString) Scan(value interface{}) error {
	if value == nil {
		*n = NullString("")
		return nil
	}
	*n = NullString(value.(string))
	return nil
}

func (w WalletAddress) String() string {
	return string(w)
}

// Value implements the database/sql driver Valuer interface for the WalletAddress type
func (w WalletAddress) Value() (driver.Value, error) {
	return strings.ToValidUTF8(w.String(), ""), nil
}

// Scan implements the database/sql Scanner interface for the WalletAddress type
func (w *WalletAddress) Scan(value interface{}) error {
	if value == nil {
		*w = WalletAddress("")
		return nil
	}
	*w = WalletAddress(value.(string))
	return nil
}

// Dimension returns the number of components in the vector
func (e EmbeddingVector) Dimension() int {
	return len(e)
}

// Value implements the database/sql driver Valuer interface for the EmbeddingVector type
func (e EmbeddingVector) Value() (driver.Value, error) {
	if len(e) == 0 {
		return nil, nil
	}
	return pq.Float64Array(e).Value()
}

// Scan implements the database/sql Scanner interface for the EmbeddingVector type
func (e *EmbeddingVector) Scan(value interface{}) error {
	if value == nil {
		*e = nil
		return nil
	}
	var arr pq.Float64Array
	if err := arr.Scan(value); err != nil {
		return err
	}
	*e = EmbeddingVector(arr)
	return nil
}

// ErrInvalidDimension is returned when a vector does not have the configured
// embedding dimension.
type ErrInvalidDimension struct {
	Want int
	Got  int
}

func (e ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid embedding dimension: want %d, got %d", e.Want, e.Got)
}
