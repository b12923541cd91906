package config

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/quasilyte/gdata"
)

const profilesItem = "dr-profiles"

// ProfileStore persists named dead reckoning profiles in the user's app data.
type ProfileStore struct {
	manager *gdata.Manager
}

// OpenProfileStore opens (or creates) the app data directory for appName.
func OpenProfileStore(appName string) (*ProfileStore, error) {
	m, err := gdata.Open(gdata.Config{
		AppName: appName,
	})
	if err != nil {
		return nil, fmt.Errorf("open profile store: %w", err)
	}
	return &ProfileStore{manager: m}, nil
}

// LoadProfiles reads saved profiles. A store with nothing saved yields an
// empty set.
func (s *ProfileStore) LoadProfiles() (ProfileSet, error) {
	data, err := s.manager.LoadItem(profilesItem)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	if data == nil {
		return ProfileSet{}, nil
	}
	return DecodeProfiles(data)
}

// SaveProfiles validates and writes the profile set.
func (s *ProfileStore) SaveProfiles(profiles ProfileSet) error {
	data, err := EncodeProfiles(profiles)
	if err != nil {
		return err
	}
	if err := s.manager.SaveItem(profilesItem, data); err != nil {
		return fmt.Errorf("save profiles: %w", err)
	}
	log.Printf("[config] saved %d dead reckoning profiles", len(profiles))
	return nil
}

// EncodeProfiles validates profiles and serializes them as JSON.
func EncodeProfiles(profiles ProfileSet) ([]byte, error) {
	if err := profiles.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(profiles)
	if err != nil {
		return nil, fmt.Errorf("encode profiles: %w", err)
	}
	return data, nil
}

// DecodeProfiles parses and validates a JSON profile set.
func DecodeProfiles(data []byte) (ProfileSet, error) {
	var profiles ProfileSet
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	if profiles == nil {
		profiles = ProfileSet{}
	}
	if err := profiles.Validate(); err != nil {
		return nil, err
	}
	return profiles, nil
}
