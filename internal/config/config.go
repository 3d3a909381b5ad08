package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/atopofconscience/mehfil/internal/domain"
)

const (
	defaultTimezone   = "America/New_York"
	configPathEnv     = "MEHFIL_CONFIG"
	databaseDSNEnv    = "DATABASE_DSN"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	geocoderURLEnv    = "GEOCODER_BASE_URL"
	renderEndpointEnv = "RENDER_ENDPOINT"
	metricsAddrEnv    = "METRICS_ADDR"
	ticketingKeyEnv   = "TICKETING_API_KEY"
)

// Duration wraps time.Duration so YAML can carry values like "45s" or "2m".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to the standard library type.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Classifier    ClassifierConfig   `yaml:"classifier"`
	Dedupe        DedupeConfig       `yaml:"dedupe"`
	Geocoder      GeocoderConfig     `yaml:"geocoder"`
	Render        RenderConfig       `yaml:"render"`
	Export        ExportConfig       `yaml:"export"`
	Notifications NotificationConfig `yaml:"notifications"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Sources       []SourceConfig     `yaml:"sources"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig describes Postgres connection details for the event store.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// SchedulerConfig defines when the pipeline should run.
type SchedulerConfig struct {
	Interval Duration       `yaml:"interval"`
	Timezone string         `yaml:"timezone"`
	location *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// PipelineConfig bounds the fetch fan-out and downstream behavior.
type PipelineConfig struct {
	Concurrency      int      `yaml:"concurrency"`
	AdapterTimeout   Duration `yaml:"adapterTimeout"`
	RunTimeout       Duration `yaml:"runTimeout"`
	KeepUnclassified bool     `yaml:"keepUnclassified"`
	SourcePriority   []string `yaml:"sourcePriority"`
}

// ClassifierConfig carries the keyword lists driving relevance and categories.
type ClassifierConfig struct {
	SouthAsian    []string            `yaml:"southAsian"`
	MiddleEastern []string            `yaml:"middleEastern"`
	Categories    map[string][]string `yaml:"categories"`
}

// DedupeConfig tunes cross-source duplicate matching.
type DedupeConfig struct {
	TitleSimilarity float64 `yaml:"titleSimilarity"`
}

// GeocoderConfig describes the external geocoding service and its cache.
type GeocoderConfig struct {
	BaseURL         string             `yaml:"baseUrl"`
	UserAgent       string             `yaml:"userAgent"`
	RegionSuffix    string             `yaml:"regionSuffix"`
	RequestInterval Duration           `yaml:"requestInterval"`
	CachePath       string             `yaml:"cachePath"`
	KnownVenues     []KnownVenueConfig `yaml:"knownVenues"`
}

// KnownVenueConfig pins coordinates for a venue matched by address substring.
// Entries are checked in order, so more specific matches belong first.
type KnownVenueConfig struct {
	Match string  `yaml:"match"`
	Lat   float64 `yaml:"lat"`
	Lon   float64 `yaml:"lon"`
}

// RenderConfig defines how to contact the headless-render service.
type RenderConfig struct {
	Endpoint string   `yaml:"endpoint"`
	Timeout  Duration `yaml:"timeout"`
}

// ExportConfig controls the dashboard snapshot artifact.
type ExportConfig struct {
	Path      string `yaml:"path"`
	GraceDays int    `yaml:"graceDays"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// MetricsConfig exposes the Prometheus listener when set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// SourceConfig describes a single source with its adapter strategy. FieldMap
// tells the normalizer which raw keys feed which canonical Event fields,
// listed in preference order.
type SourceConfig struct {
	Name        string              `yaml:"name"`
	Adapter     string              `yaml:"adapter"`
	BaseURL     string              `yaml:"baseUrl"`
	SearchTerms []string            `yaml:"searchTerms"`
	FieldMap    map[string][]string `yaml:"fieldMap"`
	Venue       VenueConfig         `yaml:"venue"`
	Options     map[string]string   `yaml:"options"`
}

// VenueConfig fixes a venue and coordinates for single-location sources.
type VenueConfig struct {
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
}

// Load reads YAML configuration (if present) and applies environment
// overrides. An explicit path wins over the MEHFIL_CONFIG variable.
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Sources) == 0 {
		cfg.Sources = defaultConfig().Sources
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(geocoderURLEnv); v != "" {
		c.Geocoder.BaseURL = v
	}

	if v := os.Getenv(renderEndpointEnv); v != "" {
		c.Render.Endpoint = v
	}

	if v := os.Getenv(metricsAddrEnv); v != "" {
		c.Metrics.Addr = v
	}

	if v := os.Getenv(ticketingKeyEnv); v != "" {
		for i := range c.Sources {
			if c.Sources[i].Adapter != "ticketing" {
				continue
			}
			if c.Sources[i].Options == nil {
				c.Sources[i].Options = map[string]string{}
			}
			c.Sources[i].Options["apiKey"] = v
		}
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Scheduler.Interval != 0 {
		base.Scheduler.Interval = override.Scheduler.Interval
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Pipeline.Concurrency != 0 {
		base.Pipeline.Concurrency = override.Pipeline.Concurrency
	}
	if override.Pipeline.AdapterTimeout != 0 {
		base.Pipeline.AdapterTimeout = override.Pipeline.AdapterTimeout
	}
	if override.Pipeline.RunTimeout != 0 {
		base.Pipeline.RunTimeout = override.Pipeline.RunTimeout
	}
	if override.Pipeline.KeepUnclassified {
		base.Pipeline.KeepUnclassified = true
	}
	if len(override.Pipeline.SourcePriority) > 0 {
		base.Pipeline.SourcePriority = override.Pipeline.SourcePriority
	}

	if len(override.Classifier.SouthAsian) > 0 {
		base.Classifier.SouthAsian = override.Classifier.SouthAsian
	}
	if len(override.Classifier.MiddleEastern) > 0 {
		base.Classifier.MiddleEastern = override.Classifier.MiddleEastern
	}
	if len(override.Classifier.Categories) > 0 {
		base.Classifier.Categories = override.Classifier.Categories
	}

	if override.Dedupe.TitleSimilarity != 0 {
		base.Dedupe.TitleSimilarity = override.Dedupe.TitleSimilarity
	}

	if override.Geocoder.BaseURL != "" {
		base.Geocoder.BaseURL = override.Geocoder.BaseURL
	}
	if override.Geocoder.UserAgent != "" {
		base.Geocoder.UserAgent = override.Geocoder.UserAgent
	}
	if override.Geocoder.RegionSuffix != "" {
		base.Geocoder.RegionSuffix = override.Geocoder.RegionSuffix
	}
	if override.Geocoder.RequestInterval != 0 {
		base.Geocoder.RequestInterval = override.Geocoder.RequestInterval
	}
	if override.Geocoder.CachePath != "" {
		base.Geocoder.CachePath = override.Geocoder.CachePath
	}
	if len(override.Geocoder.KnownVenues) > 0 {
		base.Geocoder.KnownVenues = override.Geocoder.KnownVenues
	}

	if override.Render.Endpoint != "" {
		base.Render.Endpoint = override.Render.Endpoint
	}
	if override.Render.Timeout != 0 {
		base.Render.Timeout = override.Render.Timeout
	}

	if override.Export.Path != "" {
		base.Export.Path = override.Export.Path
	}
	if override.Export.GraceDays != 0 {
		base.Export.GraceDays = override.Export.GraceDays
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if override.Metrics.Addr != "" {
		base.Metrics.Addr = override.Metrics.Addr
	}

	if len(override.Sources) > 0 {
		base.Sources = override.Sources
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:   LoggingConfig{Level: "info"},
		Database:  DatabaseConfig{DSN: ""},
		Scheduler: SchedulerConfig{Interval: Duration(24 * time.Hour), Timezone: defaultTimezone, location: tz},
		Pipeline: PipelineConfig{
			Concurrency:    3,
			AdapterTimeout: Duration(45 * time.Second),
			RunTimeout:     Duration(10 * time.Minute),
			SourcePriority: []string{
				"ticketing", "citycalendar", "aggregator", "groups",
				"mit-events", "harvard-events", "bu-events", "northeastern-events",
			},
		},
		Classifier: defaultKeywords(),
		Dedupe:     DedupeConfig{TitleSimilarity: 0.82},
		Geocoder: GeocoderConfig{
			BaseURL:         "https://nominatim.openstreetmap.org",
			UserAgent:       "mehfil/1.0",
			RegionSuffix:    "Boston, MA",
			RequestInterval: Duration(time.Second),
			CachePath:       "data/geocache.db",
			KnownVenues:     defaultKnownVenues(),
		},
		Render: RenderConfig{Endpoint: "", Timeout: Duration(30 * time.Second)},
		Export: ExportConfig{Path: "dashboard/events.json"},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{BotToken: "", ChatID: ""},
		},
		Metrics: MetricsConfig{Addr: ""},
		Sources: defaultSources(),
	}
}

func defaultKeywords() ClassifierConfig {
	return ClassifierConfig{
		SouthAsian: []string{
			"south asian", "indian", "pakistani", "bengali", "desi", "nepali", "sri lankan",
			"bangladeshi", "afghan", "tamil", "punjabi", "gujarati", "marathi", "telugu",
			"bollywood", "bhangra", "garba", "dandiya", "kathak", "bharatanatyam",
			"holi", "diwali", "navratri", "durga puja", "ganesh", "onam", "pongal", "baisakhi",
			"biryani", "samosa", "chai", "tandoori", "naan", "curry", "masala", "thali",
			"mehndi", "henna", "rangoli", "sari", "saree", "kurta", "salwar",
			"cricket", "kabaddi", "carrom",
		},
		MiddleEastern: []string{
			"middle eastern", "arab", "persian", "iranian", "lebanese", "syrian", "palestinian",
			"egyptian", "moroccan", "turkish", "afghan", "iraqi", "jordanian", "yemeni",
			"eid", "ramadan", "iftar", "nowruz", "norooz",
			"mosque", "masjid", "islamic", "muslim",
			"halal", "falafel", "hummus", "shawarma", "kebab", "kabob", "baklava", "tahini",
			"belly dance", "dabke", "oud", "arabic music",
			"hookah", "shisha", "arabic calligraphy",
		},
		Categories: map[string][]string{
			domain.CategoryArtsCrafts:       {"art", "craft", "painting", "pottery", "calligraphy", "drawing", "sculpture", "gallery", "exhibition", "workshop"},
			domain.CategoryFoodMarkets:      {"food", "cuisine", "cooking", "restaurant", "market", "bazaar", "tasting", "culinary", "chef", "dining"},
			domain.CategoryTheaterFilm:      {"theater", "theatre", "film", "movie", "cinema", "play", "drama", "screening", "documentary"},
			domain.CategoryComedy:           {"comedy", "standup", "stand-up", "comedian", "improv", "open mic", "laugh"},
			domain.CategoryCoffeeChai:       {"coffee", "chai", "tea", "cafe", "coffeehouse"},
			domain.CategorySportsOutdoors:   {"sports", "cricket", "soccer", "basketball", "hiking", "outdoor", "fitness", "yoga", "run", "marathon", "kabaddi"},
			domain.CategoryMusicDance:       {"music", "dance", "concert", "performance", "dj", "live music", "recital", "bhangra", "bollywood", "classical", "qawwali"},
			domain.CategoryTalksLectures:    {"talk", "lecture", "seminar", "discussion", "panel", "speaker", "conversation", "symposium", "conference", "fireside"},
			domain.CategoryCulturalFestival: {"festival", "mela", "celebration", "holi", "diwali", "eid", "navratri", "nowruz", "cultural"},
			domain.CategoryReligious:        {"religious", "spiritual", "prayer", "temple", "mosque", "church", "meditation", "puja", "namaz"},
			domain.CategoryCareerTech:       {"career", "professional", "intern", "startup", "entrepreneur", "tech", "coding", "cloud", "machine learning", "job", "hiring", "resume"},
			domain.CategoryCommunity:        {"community", "meetup", "networking", "social", "gathering"},
		},
	}
}

func defaultKnownVenues() []KnownVenueConfig {
	return []KnownVenueConfig{
		{Match: "islamic society of boston", Lat: 42.3307, Lon: -71.0834},
		{Match: "isbcc", Lat: 42.3307, Lon: -71.0834},
		{Match: "encore boston harbor", Lat: 42.3876, Lon: -71.0756},
		{Match: "memoire", Lat: 42.3876, Lon: -71.0756},
		{Match: "boston university", Lat: 42.3505, Lon: -71.1054},
		{Match: "northeastern", Lat: 42.3398, Lon: -71.0892},
		{Match: "mit", Lat: 42.3601, Lon: -71.0942},
		{Match: "harvard", Lat: 42.3770, Lon: -71.1167},
		{Match: "faneuil hall", Lat: 42.3601, Lon: -71.0549},
		{Match: "boston common", Lat: 42.3550, Lon: -71.0656},
		{Match: "downtown crossing", Lat: 42.3555, Lon: -71.0602},
		{Match: "beacon hill", Lat: 42.3588, Lon: -71.0707},
		{Match: "back bay", Lat: 42.3503, Lon: -71.0810},
		{Match: "south end", Lat: 42.3420, Lon: -71.0692},
		{Match: "north end", Lat: 42.3647, Lon: -71.0542},
		{Match: "seaport", Lat: 42.3519, Lon: -71.0449},
		{Match: "fenway", Lat: 42.3467, Lon: -71.0972},
		{Match: "allston", Lat: 42.3539, Lon: -71.1337},
		{Match: "brighton", Lat: 42.3464, Lon: -71.1627},
		{Match: "jamaica plain", Lat: 42.3097, Lon: -71.1151},
		{Match: "roxbury", Lat: 42.3152, Lon: -71.0886},
		{Match: "dorchester", Lat: 42.3016, Lon: -71.0674},
		{Match: "somerville", Lat: 42.3876, Lon: -71.0995},
		{Match: "brookline", Lat: 42.3318, Lon: -71.1212},
		{Match: "cambridge", Lat: 42.3736, Lon: -71.1097},
		{Match: "boston", Lat: 42.3601, Lon: -71.0589},
	}
}

func defaultSources() []SourceConfig {
	communityTerms := []string{
		"indian", "south asian", "pakistani", "bengali", "desi",
		"middle eastern", "arab", "persian", "bollywood",
		"holi", "diwali", "eid", "iftar", "nowruz",
	}
	generalTerms := []string{
		"painting class", "art workshop", "pottery", "dance class", "crafts",
		"calligraphy", "cultural", "world music", "cooking class",
		"meditation", "yoga",
	}

	institutionFieldMap := map[string][]string{
		"title":       {"title"},
		"start":       {"date", "start"},
		"venue":       {"venue"},
		"address":     {"address"},
		"url":         {"url"},
		"description": {"description"},
		"lat":         {"lat"},
		"lon":         {"lon"},
	}

	return []SourceConfig{
		{
			Name:        "ticketing",
			Adapter:     "ticketing",
			BaseURL:     "https://app.ticketmaster.com/discovery/v2/events.json",
			SearchTerms: append(append([]string{}, communityTerms...), "bhangra", "garba", "qawwali"),
			FieldMap: map[string][]string{
				"id":          {"id"},
				"title":       {"name"},
				"description": {"description"},
				"start":       {"startDate"},
				"end":         {"endDate"},
				"venue":       {"venue"},
				"address":     {"address"},
				"url":         {"url"},
				"price":       {"price"},
				"lat":         {"lat"},
				"lon":         {"lon"},
			},
			Options: map[string]string{"latlong": "42.3601,-71.0589", "radius": "50"},
		},
		{
			Name:        "citycalendar",
			Adapter:     "citycalendar",
			BaseURL:     "https://www.thebostoncalendar.com",
			SearchTerms: append(append([]string{}, communityTerms...), generalTerms...),
			FieldMap: map[string][]string{
				"title":       {"title"},
				"start":       {"date"},
				"venue":       {"venue"},
				"url":         {"url"},
				"description": {"description"},
				"price":       {"price"},
			},
		},
		{
			Name:        "aggregator",
			Adapter:     "aggregator",
			BaseURL:     "https://allevents.in/boston",
			SearchTerms: []string{"indian", "south-asian", "bollywood", "desi", "middle-eastern", "persian"},
			FieldMap: map[string][]string{
				"title":       {"title"},
				"start":       {"start", "date"},
				"end":         {"end"},
				"venue":       {"venue"},
				"address":     {"address"},
				"url":         {"url"},
				"description": {"description"},
				"price":       {"price"},
				"lat":         {"lat"},
				"lon":         {"lon"},
			},
		},
		{
			Name:        "groups",
			Adapter:     "groups",
			BaseURL:     "https://www.meetup.com/find/",
			SearchTerms: []string{"south asian", "desi", "bollywood", "middle eastern", "persian", "arab"},
			FieldMap: map[string][]string{
				"title":       {"title"},
				"start":       {"start", "date"},
				"venue":       {"venue"},
				"url":         {"url"},
				"description": {"description"},
			},
		},
		{
			Name:        "mit-events",
			Adapter:     "institution",
			BaseURL:     "https://calendar.mit.edu/search/events",
			SearchTerms: []string{"indian", "south asian", "bollywood", "middle eastern", "persian", "islamic", "cultural"},
			FieldMap:    institutionFieldMap,
			Venue:       VenueConfig{Name: "MIT Campus, Cambridge, MA", Lat: 42.3601, Lon: -71.0942},
		},
		{
			Name:        "harvard-events",
			Adapter:     "institution",
			BaseURL:     "https://calendar.college.harvard.edu/search/events",
			SearchTerms: []string{"indian", "south asian", "middle eastern", "arab", "cultural"},
			FieldMap:    institutionFieldMap,
			Venue:       VenueConfig{Name: "Harvard University, Cambridge, MA", Lat: 42.3770, Lon: -71.1167},
		},
		{
			Name:        "bu-events",
			Adapter:     "institution",
			BaseURL:     "https://www.bu.edu/calendar/",
			SearchTerms: []string{"indian", "south asian", "middle eastern", "cultural"},
			FieldMap:    institutionFieldMap,
			Venue:       VenueConfig{Name: "Boston University, Boston, MA", Lat: 42.3505, Lon: -71.1054},
		},
		{
			Name:        "northeastern-events",
			Adapter:     "institution",
			BaseURL:     "https://calendar.northeastern.edu/search/events",
			SearchTerms: []string{"indian", "south asian", "middle eastern", "cultural"},
			FieldMap:    institutionFieldMap,
			Venue:       VenueConfig{Name: "Northeastern University, Boston, MA", Lat: 42.3398, Lon: -71.0892},
		},
	}
}
