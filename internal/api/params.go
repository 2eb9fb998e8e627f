package api

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/auditledger/internal/models"
)

// maxPathIDLen bounds event ids taken from the URL.
const maxPathIDLen = 255

// validatePathID checks that a path parameter ID is non-empty and within length limits.
func validatePathID(id string) error {
	if id == "" {
		return fmt.Errorf("id must not be empty")
	}
	if len(id) > maxPathIDLen {
		return fmt.Errorf("id exceeds maximum length of %d", maxPathIDLen)
	}
	return nil
}

// parsePage reads limit and offset. Missing values are zero, which the
// service replaces with its defaults.
func parsePage(c *gin.Context) (limit, offset int, err error) {
	if limit, err = queryInt(c, "limit"); err != nil {
		return 0, 0, err
	}

	if offset, err = queryInt(c, "offset"); err != nil {
		return 0, 0, err
	}

	return limit, offset, nil
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}

	return v, nil
}

// parseTime accepts RFC 3339 timestamps or plain dates. A plain date is the
// start of that day in UTC. An empty string yields a nil time.
func parseTime(name, raw string) (*time.Time, error) {
	return parseBound(name, raw, false)
}

// parseEnd is parseTime for inclusive upper bounds: a plain date covers the
// whole day, up to its last nanosecond.
func parseEnd(name, raw string) (*time.Time, error) {
	return parseBound(name, raw, true)
}

func parseBound(name, raw string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}

	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}

	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		if endOfDay {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		return &t, nil
	}

	return nil, fmt.Errorf("%s must be an RFC 3339 timestamp or YYYY-MM-DD date", name)
}

// parseQueryOpts reads the event filters from the query string.
func parseQueryOpts(c *gin.Context) (models.QueryOpts, error) {
	opts := models.QueryOpts{
		EntityID:      c.Query("entity_id"),
		EventType:     models.EventType(c.Query("event_type")),
		UserID:        c.Query("user_id"),
		AgentID:       c.Query("agent_id"),
		ComplianceTag: c.Query("compliance_tag"),
	}

	var err error
	if opts.Start, err = parseTime("start", c.Query("start")); err != nil {
		return opts, err
	}

	if opts.End, err = parseEnd("end", c.Query("end")); err != nil {
		return opts, err
	}

	if opts.Limit, opts.Offset, err = parsePage(c); err != nil {
		return opts, err
	}

	return opts, nil
}
