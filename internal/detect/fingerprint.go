package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Fingerprint derives a stable per-device identifier from the declared
// request headers and network origin.
func Fingerprint(userAgent, acceptLanguage, accept, origin string) string {
	h := sha256.New()
	h.Write([]byte(userAgent))
	h.Write([]byte(acceptLanguage))
	h.Write([]byte(accept))
	h.Write([]byte(origin))
	return hex.EncodeToString(h.Sum(nil))
}

// DeviceRecord is the stored risk classification for one device fingerprint.
type DeviceRecord struct {
	Score              float64
	ChallengeCompleted bool
	Updated            time.Time
}

// DeviceStore tracks per-fingerprint risk classifications. It is bounded:
// when the map outgrows maxDevices it is cleared wholesale, which only costs
// previously verified devices a repeat challenge.
type DeviceStore struct {
	mu         sync.RWMutex
	devices    map[string]DeviceRecord
	maxDevices int
	now        func() time.Time
}

func NewDeviceStore(maxDevices int) *DeviceStore {
	return &DeviceStore{
		devices:    make(map[string]DeviceRecord),
		maxDevices: maxDevices,
		now:        time.Now,
	}
}

// LowerRisk records a completed challenge for the fingerprint and lowers its
// stored risk classification for subsequent requests.
func (s *DeviceStore) LowerRisk(fingerprint string) {
	if fingerprint == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.devices) >= s.maxDevices {
		s.devices = make(map[string]DeviceRecord)
	}
	s.devices[fingerprint] = DeviceRecord{
		Score:              0.3,
		ChallengeCompleted: true,
		Updated:            s.now(),
	}
}

// Lookup returns the stored record for a fingerprint, if any.
func (s *DeviceStore) Lookup(fingerprint string) (DeviceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.devices[fingerprint]
	return rec, ok
}
