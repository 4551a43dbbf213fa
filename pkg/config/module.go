package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	J "cuelang.org/go/encoding/json"
	"cuelang.org/go/encoding/yaml"
	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every environment override, for example
// PARTICLES_COLLISION_VOXEL_ELASTICITY.
const EnvPrefix = "PARTICLES_"

//go:embed schema.cue
var schemaFile string

//go:embed default.yaml
var DEFAULT []byte

// readFile compiles one JSON or YAML config file into a CUE value.
func readFile(ctx *cue.Context, path string) (*cue.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read: %w", err)
	}

	var value cue.Value
	switch filepath.Ext(path) {
	case ".json":
		expr, err := J.Extract(path, data)
		if err != nil {
			return nil, err
		}
		value = ctx.BuildExpr(expr)
	case ".yaml", ".yml":
		file, err := yaml.Extract(path, data)
		if err != nil {
			return nil, err
		}
		value = ctx.BuildFile(file)
	default:
		return nil, fmt.Errorf("%s is not a .json or .yaml file", filepath.Base(path))
	}

	if err := value.Err(); err != nil {
		return nil, err
	}
	return &value, nil
}

// Process reads the provided configuration files in order, compiles them,
// and unifies them with the configuration file schema. If no configuration
// files are provided, the default configuration is used. Environment
// overrides are applied last and checked against the same schema.
func Process(configPaths []string) (*Config, error) {
	ctx := cuecontext.New()

	// Compile the schema
	base := ctx.CompileString(schemaFile)
	err := base.Err()
	if err != nil {
		return nil, err
	}
	schema := base

	if len(configPaths) == 0 {
		// Load default config
		yamlFile, err := yaml.Extract("<default>", DEFAULT)
		if err != nil {
			return nil, err
		}

		value := ctx.BuildFile(yamlFile)
		if err := value.Err(); err != nil {
			return nil, err
		}

		schema = schema.Unify(value)
		if err := schema.Err(); err != nil {
			return nil, fmt.Errorf(
				"invalid default config file: %v",
				err,
			)
		}
	}

	for _, path := range configPaths {
		value, err := readFile(ctx, path)
		if err != nil {
			return nil, fmt.Errorf(
				"could not process config file %s: %v",
				path,
				err,
			)
		}

		schema = schema.Unify(*value)
		if err := schema.Err(); err != nil {
			return nil, fmt.Errorf(
				"could not merge config file %s: %v",
				path,
				err,
			)
		}

		// Check if the config file is valid
		err = schema.Validate()
		if err != nil {
			return nil, fmt.Errorf(
				"config file %s is not valid: %v",
				path,
				err,
			)
		}
	}

	if err := schema.Validate(); err != nil {
		return nil, err
	}

	data, err := schema.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf(
			"could not aggregate config: %v",
			err,
		)
	}

	config := Config{}
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	err = env.ParseWithOptions(&config, env.Options{Prefix: EnvPrefix})
	if err != nil {
		return nil, fmt.Errorf("could not parse environment: %w", err)
	}

	if err := check(ctx, base, &config); err != nil {
		return nil, fmt.Errorf("environment overrides are not valid: %v", err)
	}

	return &config, nil
}

// check unifies an already decoded config with the schema again.
func check(ctx *cue.Context, schema cue.Value, config *Config) error {
	data, err := json.Marshal(config)
	if err != nil {
		return err
	}

	expr, err := J.Extract("<config>", data)
	if err != nil {
		return err
	}

	value := schema.Unify(ctx.BuildExpr(expr))
	if err := value.Err(); err != nil {
		return err
	}
	return value.Validate(cue.Concrete(true))
}
