package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dativo-io/veil/internal/anonymizer"
	"github.com/dativo-io/veil/internal/cipher"
	"github.com/dativo-io/veil/internal/config"
	"github.com/dativo-io/veil/internal/detector"
	"github.com/dativo-io/veil/internal/session"
)

// buildDetector returns the configured entity detector.
func buildDetector(cfg *config.Config) (detector.Detector, error) {
	switch cfg.Detector {
	case config.DetectorPresidio:
		return detector.NewPresidioClient(cfg.PresidioURL,
			detector.WithHTTPClient(newAnalyzerHTTPClient(cfg.DetectorTimeout)),
			detector.WithTimeout(cfg.DetectorTimeout),
			detector.WithScoreThreshold(cfg.MinScore),
		), nil
	default:
		s, err := detector.NewScanner(
			detector.WithMinScore(cfg.MinScore),
			detector.WithPatternFile(cfg.PatternFile),
			detector.WithEntities(cfg.Entities),
		)
		if err != nil {
			return nil, fmt.Errorf("building local detector: %w", err)
		}
		return s, nil
	}
}

// newAnalyzerHTTPClient keeps enough idle connections for concurrent requests
// to one analyzer host and bounds the wait for response headers.
func newAnalyzerHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 32
	if timeout > 0 {
		transport.ResponseHeaderTimeout = timeout
	}
	return &http.Client{Transport: transport}
}

// buildService wires detector, cipher and cache into an anonymizer.Service.
// sink may be nil.
func buildService(cfg *config.Config, cache *session.Cache, sink anonymizer.EventSink) (*anonymizer.Service, error) {
	det, err := buildDetector(cfg)
	if err != nil {
		return nil, err
	}
	op, err := cipher.New(cfg.CipherAlgorithm, cfg.CipherKey)
	if err != nil {
		return nil, fmt.Errorf("building cipher: %w", err)
	}
	svcCfg := anonymizer.Config{
		Detector: det,
		Operator: op,
		Cache:    cache,
		Entities: cfg.Entities,
		Language: cfg.Language,
	}
	if sink != nil {
		svcCfg.Sink = sink
	}
	return anonymizer.NewService(svcCfg)
}
