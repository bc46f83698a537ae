package alertfeed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Alert is one row of the predictor feed: a forecast of where an entity
// is expected to be twelve hours after its last observed event.
type Alert struct {
	AlertTimestamp     string  `json:"alert_timestamp"`
	EntityID           string  `json:"entity_id"`
	Name               string  `json:"name"`
	LastKnownTimestamp string  `json:"last_known_timestamp"`
	LastKnownLocation  string  `json:"last_known_location"`
	PredictedLocation  string  `json:"predicted_location_after_12hr"`
	Confidence         float64 `json:"prediction_confidence"`
	Reason             string  `json:"alert_reason"`
}

// feed header columns as written by the predictor job
var columns = []string{
	"Alert_Timestamp",
	"Entity_ID",
	"name",
	"Last_Known_Timestamp",
	"Last_Known_Location",
	"Predicted_Location_After_12hr",
	"Prediction_Confidence",
	"Alert_Reason",
}

// Parse reads the predictor CSV. A malformed row fails the whole parse;
// the caller decides whether to degrade to an empty feed.
func Parse(r io.Reader) ([]Alert, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return []Alert{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, want := range columns {
		if _, ok := idx[strings.ToLower(want)]; !ok {
			return nil, fmt.Errorf("feed header missing column %q", want)
		}
	}

	field := func(row []string, name string) string {
		return strings.TrimSpace(row[idx[strings.ToLower(name)]])
	}

	var alerts []Alert
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		conf, err := strconv.ParseFloat(field(row, "Prediction_Confidence"), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad confidence: %w", line, err)
		}
		alerts = append(alerts, Alert{
			AlertTimestamp:     field(row, "Alert_Timestamp"),
			EntityID:           field(row, "Entity_ID"),
			Name:               field(row, "name"),
			LastKnownTimestamp: field(row, "Last_Known_Timestamp"),
			LastKnownLocation:  field(row, "Last_Known_Location"),
			PredictedLocation:  field(row, "Predicted_Location_After_12hr"),
			Confidence:         conf,
			Reason:             field(row, "Alert_Reason"),
		})
	}
	return alerts, nil
}

// Load reads the feed file. A missing file is reported to the caller,
// who treats it as a degraded (empty) feed rather than a fatal error.
func Load(path string) ([]Alert, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Cache is the process-wide alert set, populated once at startup and
// read-only afterwards, so it is safe for arbitrary concurrent readers.
type Cache struct {
	byEntity map[string][]Alert
	total    int
}

// NewCache indexes alerts by entity for exact-match lookup.
func NewCache(alerts []Alert) *Cache {
	c := &Cache{byEntity: make(map[string][]Alert), total: len(alerts)}
	for _, a := range alerts {
		c.byEntity[a.EntityID] = append(c.byEntity[a.EntityID], a)
	}
	return c
}

// ForEntity returns all alerts whose entity_id exactly equals id.
// The result is always non-nil.
func (c *Cache) ForEntity(id string) []Alert {
	if c == nil {
		return []Alert{}
	}
	if alerts, ok := c.byEntity[id]; ok {
		return alerts
	}
	return []Alert{}
}

// Len reports the total number of loaded alerts.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.total
}
