// Package locale provides the translation store used for the fixed labels of
// the journey tree: the entry node, the home page and grouped-node counts.
package locale

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

// Translation keys used by the naming engine.
const (
	KeyInternet     = "Internet"
	KeyHome         = "Home"
	KeyMergedSuffix = "MergedNodesSuffix"
)

// Translator resolves a key to a localized string, formatting args into it.
type Translator interface {
	Translate(key string, args ...any) string
}

var defaultMessages = map[string]string{
	KeyInternet:     "Internet",
	KeyHome:         "Home",
	KeyMergedSuffix: "×%d merged",
}

// File is the YAML layout of a translation file.
type File struct {
	Language string            `yaml:"language"`
	Messages map[string]string `yaml:"messages"`
}

// Catalog is a Translator backed by an x/text message catalog. English
// defaults are always present; further languages are loaded from YAML.
type Catalog struct {
	mu      sync.RWMutex
	tag     language.Tag
	builder *catalog.Builder
	printer *message.Printer
	// langs lists the loaded languages, English first so that it wins when
	// nothing better matches.
	langs []language.Tag
	keys  map[language.Tag]map[string]bool
}

// NewCatalog creates a catalog rendering in lang (BCP 47, e.g. "en", "de-CH").
func NewCatalog(lang string) (*Catalog, error) {
	tag := language.English
	if lang != "" {
		parsed, err := language.Parse(lang)
		if err != nil {
			return nil, fmt.Errorf("locale: invalid language %q: %w", lang, err)
		}
		tag = parsed
	}

	c := &Catalog{
		tag:     tag,
		builder: catalog.NewBuilder(catalog.Fallback(language.English)),
		keys:    make(map[language.Tag]map[string]bool),
	}
	if err := c.set(language.English, defaultMessages); err != nil {
		return nil, err
	}
	c.rebuildPrinter()
	return c, nil
}

// set stores messages for tag and backfills the default keys it lacks.
func (c *Catalog) set(tag language.Tag, messages map[string]string) error {
	known, ok := c.keys[tag]
	if !ok {
		known = make(map[string]bool)
		c.keys[tag] = known
		c.langs = append(c.langs, tag)
	}
	for key, msg := range messages {
		if err := c.builder.SetString(tag, key, msg); err != nil {
			return fmt.Errorf("locale: message %q for %s: %w", key, tag, err)
		}
		known[key] = true
	}
	for key, msg := range defaultMessages {
		if known[key] {
			continue
		}
		if err := c.builder.SetString(tag, key, msg); err != nil {
			return fmt.Errorf("locale: default message %q for %s: %w", key, tag, err)
		}
		known[key] = true
	}
	return nil
}

// rebuildPrinter matches the requested language against the loaded ones.
func (c *Catalog) rebuildPrinter() {
	_, idx, _ := language.NewMatcher(c.langs).Match(c.tag)
	c.printer = message.NewPrinter(c.langs[idx], message.Catalog(c.builder))
}

// Language returns the tag the catalog renders in.
func (c *Catalog) Language() language.Tag {
	return c.tag
}

// Load adds the messages of one YAML translation file.
func (c *Catalog) Load(r io.Reader) error {
	var f File
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return fmt.Errorf("locale: decode translations: %w", err)
	}
	if f.Language == "" {
		return fmt.Errorf("locale: translation file has no language")
	}
	tag, err := language.Parse(f.Language)
	if err != nil {
		return fmt.Errorf("locale: invalid language %q: %w", f.Language, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.set(tag, f.Messages); err != nil {
		return err
	}
	c.rebuildPrinter()
	return nil
}

// LoadFile loads a YAML translation file from disk.
func (c *Catalog) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("locale: %w", err)
	}
	defer f.Close()
	return c.Load(f)
}

// Translate implements Translator. Unknown keys are rendered verbatim.
func (c *Catalog) Translate(key string, args ...any) string {
	c.mu.RLock()
	p := c.printer
	c.mu.RUnlock()
	return p.Sprintf(key, args...)
}
