package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// GenerateHCL renders cfg as HCL. An empty password is written as a
// reference to ARCHER_PASSWORD only when that variable is set, so the
// output always loads back in the current environment.
func GenerateHCL(cfg *Config) []byte {
	cfg.applyDefaults()

	f := hclwrite.NewEmptyFile()
	body := f.Body()

	rb := body.AppendNewBlock("router", nil).Body()
	rb.SetAttributeValue("host", cty.StringVal(cfg.Router.Host))
	if cfg.Router.Username != DefaultUsername {
		rb.SetAttributeValue("username", cty.StringVal(cfg.Router.Username))
	}
	switch {
	case cfg.Router.Password != "":
		rb.SetAttributeValue("password", cty.StringVal(cfg.Router.Password))
	case os.Getenv(EnvPassword) != "":
		rb.SetAttributeTraversal("password", hcl.Traversal{
			hcl.TraverseRoot{Name: "env"},
			hcl.TraverseAttr{Name: EnvPassword},
		})
	}
	rb.SetAttributeValue("evict_existing", cty.BoolVal(cfg.Router.EvictExisting))
	rb.SetAttributeValue("timeout", cty.StringVal(cfg.Router.Timeout))
	if cfg.Router.UserAgent != "" {
		rb.SetAttributeValue("user_agent", cty.StringVal(cfg.Router.UserAgent))
	}

	body.AppendNewline()
	lb := body.AppendNewBlock("log", nil).Body()
	lb.SetAttributeValue("level", cty.StringVal(cfg.Log.Level))
	if cfg.Log.JSON {
		lb.SetAttributeValue("json", cty.True)
	}

	return f.Bytes()
}

// ConfigFile is an HCL config opened for editing. Edits keep the comments
// and layout of the original file.
type ConfigFile struct {
	Path    string
	Config  *Config
	hclFile *hclwrite.File
}

// LoadConfigFile opens path for editing.
func LoadConfigFile(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	f, diags := hclwrite.ParseConfig(data, path, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL for writing: %s", diags.Error())
	}
	cfg, err := Load(data, path)
	if err != nil {
		return nil, err
	}
	return &ConfigFile{Path: path, Config: cfg, hclFile: f}, nil
}

// NewConfigFile starts an editable file from cfg.
func NewConfigFile(path string, cfg *Config) (*ConfigFile, error) {
	data := GenerateHCL(cfg)
	f, diags := hclwrite.ParseConfig(data, path, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("generated HCL does not parse: %s", diags.Error())
	}
	return &ConfigFile{Path: path, Config: cfg, hclFile: f}, nil
}

// routerAttributes are the settable names in the router block.
var routerAttributes = map[string]cty.Type{
	"host":           cty.String,
	"username":       cty.String,
	"password":       cty.String,
	"evict_existing": cty.Bool,
	"timeout":        cty.String,
	"user_agent":     cty.String,
}

// SetRouterAttribute sets one attribute of the router block, creating the
// block if needed, and re-decodes the result.
func (cf *ConfigFile) SetRouterAttribute(name string, value cty.Value) error {
	want, ok := routerAttributes[name]
	if !ok {
		return fmt.Errorf("unknown router attribute %q", name)
	}
	if !value.Type().Equals(want) {
		return fmt.Errorf("router.%s must be a %s", name, want.FriendlyName())
	}

	body := cf.hclFile.Body()
	block := body.FirstMatchingBlock("router", nil)
	if block == nil {
		block = body.AppendNewBlock("router", nil)
	}
	block.Body().SetAttributeValue(name, value)

	cfg, err := Load(cf.hclFile.Bytes(), cf.Path)
	if err != nil {
		return err
	}
	cf.Config = cfg
	return nil
}

// Bytes returns the current HCL source.
func (cf *ConfigFile) Bytes() []byte {
	return cf.hclFile.Bytes()
}

// Save writes the file, keeping the previous version as <path>.bak. The
// file may hold a password, so it is written 0600.
func (cf *ConfigFile) Save() error {
	if _, err := os.Stat(cf.Path); err == nil {
		if err := copyFile(cf.Path, cf.Path+".bak"); err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(cf.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(cf.Path, cf.hclFile.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o600)
}
