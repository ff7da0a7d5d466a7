package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/exposechain/exposechain/internal/chain"
	"github.com/exposechain/exposechain/internal/model"
	"github.com/exposechain/exposechain/internal/risk"
)

// readInput reads path, or stdin when path is "-".
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" {
		return nil, errors.New("no input file given (use -f, or -f - for stdin)")
	}
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// parseRecords decodes a YAML or JSON list of exposure records. A document
// with a top-level "records" key (the POST /chains body) is accepted too.
func parseRecords(data []byte) ([]chain.Record, error) {
	var records []chain.Record
	if err := yaml.Unmarshal(data, &records); err == nil {
		return records, nil
	}
	var wrapped struct {
		Records []chain.Record `yaml:"records"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse records: %w", err)
	}
	if wrapped.Records == nil {
		return nil, errors.New("parse records: no records found")
	}
	return wrapped.Records, nil
}

// parseExposure decodes a single YAML or JSON exposure for scoring.
func parseExposure(data []byte) (risk.Exposure, error) {
	var e model.Exposure
	if err := yaml.Unmarshal(data, &e); err != nil {
		return risk.Exposure{}, fmt.Errorf("parse exposure: %w", err)
	}
	return e.RiskInput(), nil
}
