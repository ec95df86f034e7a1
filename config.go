package devmeter

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type RootConfig struct {
	Refresh  RefreshConfig   `yaml:"refresh" json:"refresh"`
	Exporter *ExporterConfig `yaml:"exporter" json:"exporter"`
	Storage  StorageConfig   `yaml:"storage" json:"storage"`
	Updates  *UpdatesConfig  `yaml:"updates" json:"updates"`
}

func (this *RootConfig) Validate() error {

	if err := this.Refresh.Validate(); err != nil {
		return fmt.Errorf("invalid refresh config: %s", err.Error())
	}

	if this.Exporter != nil {
		if err := this.Exporter.Validate(); err != nil {
			return fmt.Errorf("invalid exporter config: %s", err.Error())
		}
	}

	if err := this.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %s", err.Error())
	}

	if this.Updates != nil {
		if err := this.Updates.Validate(); err != nil {
			return fmt.Errorf("invalid updates config: %s", err.Error())
		}
	}

	return nil
}

type RefreshConfig struct {
	Every ConfigDuration `yaml:"every" json:"every"`
	Auto  *bool          `yaml:"auto" json:"auto"`
	Heavy bool           `yaml:"heavy" json:"heavy"`
}

func (this *RefreshConfig) Validate() error {

	if this.Every == 0 {
		this.Every = ConfigDuration(DefaultRefreshInterval)
	} else if this.Every.Duration() < 500*time.Millisecond {
		return errors.New("refresh interval below 500ms")
	}

	return nil
}

// AutoEnabled defaults to true when the field is omitted.
func (this *RefreshConfig) AutoEnabled() bool {
	return this.Auto == nil || *this.Auto
}

type ExporterConfig struct {
	Listen string `yaml:"listen" json:"listen"`
}

func (this *ExporterConfig) Validate() error {

	if this.Listen == "" {
		this.Listen = ":8080"
		return nil
	}

	if _, _, found := strings.Cut(this.Listen, ":"); !found {
		return fmt.Errorf("invalid listen address '%s'", this.Listen)
	}

	return nil
}

type StorageConfig struct {
	SqlitePath   string `yaml:"sqlite_path" json:"sqlite_path"`
	TimescaleUrl string `yaml:"timescale_url" json:"timescale_url"`
}

func (this *StorageConfig) Validate() error {

	if this.TimescaleUrl != "" {
		if _, err := url.Parse(this.TimescaleUrl); err != nil {
			return fmt.Errorf("invalid timescale url: %s", err.Error())
		}
	}

	return nil
}

type UpdatesConfig struct {
	Url   string `yaml:"url" json:"url"`
	Proxy string `yaml:"proxy" json:"proxy"`
}

func (this *UpdatesConfig) Validate() error {

	if this.Url == "" {
		return errors.New("updates url is empty")
	}

	parsed, err := url.Parse(this.Url)
	if err != nil {
		return fmt.Errorf("invalid updates url: %s", err.Error())
	}

	switch parsed.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("unsupported updates url scheme '%s'", parsed.Scheme)
	}

	if this.Proxy != "" {
		if _, err := url.Parse(this.Proxy); err != nil {
			return fmt.Errorf("invalid proxy url: %s", err.Error())
		}
	}

	return nil
}

// ConfigDuration accepts either a bare number of seconds or a Go duration
// string in yaml and json configs.
type ConfigDuration time.Duration

func (this ConfigDuration) Duration() time.Duration {
	return time.Duration(this)
}

func (this *ConfigDuration) UnmarshalYAML(unmarshal func(any) error) error {

	var token string
	if err := unmarshal(&token); err != nil {
		return err
	}

	parsed, err := ParseDuration(token)
	if err != nil {
		return err
	}

	*this = ConfigDuration(parsed)
	return nil
}

func (this *ConfigDuration) UnmarshalJSON(data []byte) error {

	token := strings.Trim(string(data), `"`)

	parsed, err := ParseDuration(token)
	if err != nil {
		return err
	}

	*this = ConfigDuration(parsed)
	return nil
}

func ParseDuration(val string) (time.Duration, error) {

	if val = strings.TrimSpace(val); val == "" || val == "0" {
		return 0, nil
	}

	var useStdlibParser = func(val string) (time.Duration, error) {

		duration, err := time.ParseDuration(val)
		if err != nil {
			return 0, err
		} else if duration < 0 {
			return 0, errors.New("invalid duration value")
		}

		return duration, nil
	}

	for _, next := range val {
		if next < '0' || next > '9' {
			return useStdlibParser(val)
		}
	}

	seconds, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, err
	} else if seconds < 0 {
		return 0, errors.New("invalid duration value")
	}

	return time.Duration(seconds) * time.Second, nil
}
