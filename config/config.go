package config

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Validators hold the list of validation functions for each configuration
// property. Validators must take a key and json string respectively as
// arguments, and must return either an error or nil depending on whether or not
// the given key and value are valid. Validators will only be run if a property
// being set matches the name given in this map.
var Validators = map[string]func(string, string) error{
	"identity.name":           validateLettersOnly,
	"log.level":               validateLevel,
	"ursula.commitInterval":   validateDuration,
	"ursula.cacheSize":        validateNonNegative,
	"retrieval.concurrency":   validateNonNegative,
	"retrieval.timeout":       validateDuration,
	"metrics.address":         validateHostPort,
	"ledger.periodDuration":   validateNonNegative,
	"ledger.minLockedPeriods": validateNonNegative,
}

// Config is an in memory representation of the node configuration file
type Config struct {
	Identity  IdentityConfig  `json:"identity"`
	Data      StorePathConfig `json:"data"`
	Log       LogConfig       `json:"log"`
	Ledger    LedgerConfig    `json:"ledger"`
	Ursula    UrsulaConfig    `json:"ursula"`
	Retrieval RetrievalConfig `json:"retrieval"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type IdentityConfig struct {
	Name string `json:"name"`
	// Stamp is the printable public key this node signs with
	Stamp string `json:"stamp,omitempty"`
	// Key is the default delegating and receiving key
	Key string `json:"key,omitempty"`
}

func newDefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{Name: "ursula"}
}

type StorePathConfig struct {
	MetaPath string `json:"metaPath"`
	KeyPath  string `json:"keyPath"`
}

func newDefaultStorePathConfig() StorePathConfig {
	return StorePathConfig{
		MetaPath: "meta",
		KeyPath:  "keystore",
	}
}

type LogConfig struct {
	Level      string `json:"level"`
	File       string `json:"file,omitempty"`
	MaxSize    int    `json:"maxSize"`
	MaxBackups int    `json:"maxBackups"`
	MaxAge     int    `json:"maxAge"`
}

func newDefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		MaxSize:    100,
		MaxBackups: 10,
		MaxAge:     30,
	}
}

// AllocationConfig is a genesis balance; Value is a decimal integer.
type AllocationConfig struct {
	Address string `json:"address"`
	Value   string `json:"value"`
}

// LedgerConfig overrides the network constants; zero keeps the default.
type LedgerConfig struct {
	PeriodDuration     uint64             `json:"periodDuration"`
	MinLockedPeriods   uint64             `json:"minLockedPeriods"`
	MaxRewardedPeriods uint64             `json:"maxRewardedPeriods"`
	MaxSubStakes       int                `json:"maxSubStakes"`
	Allocations        []AllocationConfig `json:"allocations"`
}

func newDefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		Allocations: []AllocationConfig{},
	}
}

type UrsulaConfig struct {
	CacheSize      int    `json:"cacheSize"`
	CommitInterval string `json:"commitInterval"`
}

func newDefaultUrsulaConfig() UrsulaConfig {
	return UrsulaConfig{
		CacheSize:      1024,
		CommitInterval: "1m",
	}
}

type RetrievalConfig struct {
	Concurrency int    `json:"concurrency"`
	Timeout     string `json:"timeout"`
}

func newDefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		Concurrency: 8,
		Timeout:     "30s",
	}
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
}

func newDefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Address: "127.0.0.1:9091",
	}
}

// NewDefaultConfig returns a config object with all the fields filled out to
// their default values
func NewDefaultConfig() *Config {
	return &Config{
		Identity:  newDefaultIdentityConfig(),
		Data:      newDefaultStorePathConfig(),
		Log:       newDefaultLogConfig(),
		Ledger:    newDefaultLedgerConfig(),
		Ursula:    newDefaultUrsulaConfig(),
		Retrieval: newDefaultRetrievalConfig(),
		Metrics:   newDefaultMetricsConfig(),
	}
}

// WriteFile writes the config to the given filepath.
func (cfg *Config) WriteFile(file string) error {
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close() // nolint: errcheck

	configString, err := json.MarshalIndent(*cfg, "", "\t")
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(f, string(configString))
	return err
}

// ReadFile reads a config file from disk and validates it.
func ReadFile(file string) (*Config, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint: errcheck

	cfg := NewDefaultConfig()
	rawConfig, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if len(rawConfig) == 0 {
		return cfg, nil
	}

	err = json.Unmarshal(rawConfig, &cfg)
	if err != nil {
		return nil, err
	}

	err = cfg.Validate()
	if err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", file)
	}

	return cfg, nil
}

// Validate runs every registered validator over the whole config.
func (cfg *Config) Validate() error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	for key := range obj {
		if err := validate(key, string(obj[key])); err != nil {
			return err
		}
	}
	return nil
}

// Set sets the config sub-struct referenced by `key`, e.g. 'ursula.cacheSize'
// or 'log' to the json key value pair encoded in jsonVal.
func (cfg *Config) Set(dottedKey string, jsonString string) error {
	if !json.Valid([]byte(jsonString)) {
		jsonBytes, _ := json.Marshal(jsonString)
		jsonString = string(jsonBytes)
	}

	if err := validate(dottedKey, jsonString); err != nil {
		return err
	}

	keys := strings.Split(dottedKey, ".")
	for i := len(keys) - 1; i >= 0; i-- {
		jsonString = fmt.Sprintf(`{ "%s": %s }`, keys[i], jsonString)
	}

	decoder := json.NewDecoder(strings.NewReader(jsonString))
	decoder.DisallowUnknownFields()

	return decoder.Decode(&cfg)
}

// Get gets the config sub-struct referenced by `key`, e.g. 'log.level'
func (cfg *Config) Get(key string) (interface{}, error) {
	v := reflect.Indirect(reflect.ValueOf(cfg))
	keyTags := strings.Split(key, ".")
OUTER:
	for j, keyTag := range keyTags {
		if v.Type().Kind() == reflect.Struct {
			for i := 0; i < v.NumField(); i++ {
				jsonTag := strings.Split(
					v.Type().Field(i).Tag.Get("json"),
					",")[0]
				if jsonTag == keyTag {
					v = v.Field(i)
					if j == len(keyTags)-1 {
						return v.Interface(), nil
					}
					v = reflect.Indirect(v) // only attempt one dereference
					continue OUTER
				}
			}
		}

		return nil, fmt.Errorf("key: %s invalid for config", key)
	}
	// Cannot get here as len(strings.Split(s, sep)) >= 1 with non-empty sep
	return nil, fmt.Errorf("empty key is invalid")
}

// CommitInterval parses Ursula.CommitInterval.
func (cfg *Config) CommitInterval() time.Duration {
	d, err := time.ParseDuration(cfg.Ursula.CommitInterval)
	if err != nil {
		return time.Minute
	}
	return d
}

// RetrievalTimeout parses Retrieval.Timeout.
func (cfg *Config) RetrievalTimeout() time.Duration {
	d, err := time.ParseDuration(cfg.Retrieval.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// validate runs validations on a given key and json string. validate uses the
// validators map defined at the top of this file to determine which validations
// to use for each key.
func validate(dottedKey string, jsonString string) error {
	var obj interface{}
	if err := json.Unmarshal([]byte(jsonString), &obj); err != nil {
		return err
	}
	// recursively validate sub-keys by partially unmarshalling
	if reflect.ValueOf(obj).Kind() == reflect.Map {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(jsonString), &obj); err != nil {
			return err
		}
		for key := range obj {
			if err := validate(dottedKey+"."+key, string(obj[key])); err != nil {
				return err
			}
		}
		return nil
	}

	if validationFunc, present := Validators[dottedKey]; present {
		return validationFunc(dottedKey, jsonString)
	}

	return nil
}

// validateLettersOnly validates that a given value contains only letters. If it
// does not, an error is returned using the given key for the message.
func validateLettersOnly(key string, value string) error {
	if match, _ := regexp.MatchString("^\"[a-zA-Z]+\"$", value); !match {
		return errors.Errorf(`"%s" must only contain letters`, key)
	}
	return nil
}

func validateLevel(key string, value string) error {
	switch strings.ToLower(strings.Trim(value, `"`)) {
	case "debug", "info", "warn", "error":
		return nil
	}
	return errors.Errorf(`"%s" must be one of debug, info, warn or error`, key)
}

func validateDuration(key string, value string) error {
	var s string
	if err := json.Unmarshal([]byte(value), &s); err != nil {
		return errors.Wrapf(err, `"%s" must be a duration string`, key)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, `"%s" is not a duration`, key)
	}
	if d <= 0 {
		return errors.Errorf(`"%s" must be positive`, key)
	}
	return nil
}

// zero keeps the default
func validateNonNegative(key string, value string) error {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return errors.Wrapf(err, `"%s" must be an integer`, key)
	}
	if n < 0 {
		return errors.Errorf(`"%s" must not be negative`, key)
	}
	return nil
}

func validateHostPort(key string, value string) error {
	var s string
	if err := json.Unmarshal([]byte(value), &s); err != nil {
		return errors.Wrapf(err, `"%s" must be a string`, key)
	}
	if _, _, err := net.SplitHostPort(s); err != nil {
		return errors.Wrapf(err, `"%s" must be host:port`, key)
	}
	return nil
}
