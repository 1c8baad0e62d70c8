// Package geoip resolves network origins into a reputation score and
// metadata using an external ip-api-compatible lookup service.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Deva-cpp/nextbuy-shield/internal/detect"
)

const neutralScore = 0.5

// Suspicious vocabularies for external origins. ISP keywords are matched as
// lowercase substrings; ASNs as prefixes of the "AS" field.
var (
	suspiciousISPKeywords = []string{
		"vpn", "proxy", "hosting", "datacenter", "cloud",
		"amazon", "google cloud", "microsoft", "digitalocean", "vultr", "linode",
	}
	suspiciousASNs = []string{"AS15169", "AS8075", "AS13335", "AS16509"}
)

// apiFields is the field list requested from the lookup service.
const apiFields = "status,message,country,countryCode,region,regionName,city,isp,org,as,proxy,hosting"

type apiResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Country    string `json:"country"`
	CC         string `json:"countryCode"`
	Region     string `json:"region"`
	RegionName string `json:"regionName"`
	City       string `json:"city"`
	ISP        string `json:"isp"`
	Org        string `json:"org"`
	AS         string `json:"as"`
	Proxy      bool   `json:"proxy"`
	Hosting    bool   `json:"hosting"`
}

type cached struct {
	score float64
	meta  detect.OriginMeta
}

// Resolver scores origins. Lookups never fail outward: every problem
// degrades to a neutral score with the error recorded in the metadata.
type Resolver struct {
	baseURL       string
	client        *http.Client
	cache         *lru.Cache[string, cached]
	highRisk      map[string]struct{}
	lookupTimeout time.Duration
}

// New builds a resolver against an ip-api-compatible base URL.
// highRiskCountries is a list of ISO country codes scored as elevated risk.
func New(baseURL string, timeout time.Duration, cacheSize int, highRiskCountries []string) (*Resolver, error) {
	cache, err := lru.New[string, cached](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("geoip cache: %w", err)
	}
	highRisk := make(map[string]struct{}, len(highRiskCountries))
	for _, cc := range highRiskCountries {
		highRisk[strings.ToUpper(strings.TrimSpace(cc))] = struct{}{}
	}
	return &Resolver{
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        &http.Client{Timeout: timeout},
		cache:         cache,
		highRisk:      highRisk,
		lookupTimeout: timeout,
	}, nil
}

// Resolve scores one origin. Loopback and private addresses are classified
// locally; everything else goes through the lookup service, with results
// cached per origin.
func (r *Resolver) Resolve(ctx context.Context, origin string) (float64, detect.OriginMeta) {
	ip := net.ParseIP(origin)
	if ip != nil {
		if ip.IsLoopback() {
			return 0.3, detect.OriginMeta{Local: true, Country: "localhost"}
		}
		if ip.IsPrivate() {
			return 0.4, detect.OriginMeta{Private: true, Country: "private"}
		}
	}

	if c, ok := r.cache.Get(origin); ok {
		return c.score, c.meta
	}

	score, meta, err := r.lookup(ctx, origin)
	if err != nil {
		log.Printf("[geoip] lookup %s: %v", origin, err)
		return neutralScore, detect.OriginMeta{Error: err.Error()}
	}

	r.cache.Add(origin, cached{score: score, meta: meta})
	return score, meta
}

func (r *Resolver) lookup(ctx context.Context, origin string) (float64, detect.OriginMeta, error) {
	ctx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/%s?fields=%s", r.baseURL, origin, apiFields)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, detect.OriginMeta{}, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, detect.OriginMeta{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, detect.OriginMeta{}, fmt.Errorf("lookup status %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, detect.OriginMeta{}, fmt.Errorf("decode lookup response: %w", err)
	}
	if body.Status != "success" {
		return 0, detect.OriginMeta{}, fmt.Errorf("lookup failed: %s", body.Message)
	}

	meta := detect.OriginMeta{
		Country: body.Country,
		CC:      body.CC,
		Region:  body.RegionName,
		City:    body.City,
		ISP:     body.ISP,
		Org:     body.Org,
		AS:      body.AS,
		Proxy:   body.Proxy,
		Hosting: body.Hosting,
	}
	return r.score(meta), meta, nil
}

// score applies the additive external-origin heuristics, capped at 1.0.
func (r *Resolver) score(m detect.OriginMeta) float64 {
	score := 0.3

	if _, ok := r.highRisk[strings.ToUpper(m.CC)]; ok {
		score += 0.3
	}
	if m.Proxy || m.Hosting {
		score += 0.4
	}
	isp := strings.ToLower(m.ISP + " " + m.Org)
	for _, kw := range suspiciousISPKeywords {
		if strings.Contains(isp, kw) {
			score += 0.2
			break
		}
	}
	for _, asn := range suspiciousASNs {
		if strings.HasPrefix(m.AS, asn) {
			score += 0.1
			break
		}
	}

	if score > 1.0 {
		return 1.0
	}
	return score
}
