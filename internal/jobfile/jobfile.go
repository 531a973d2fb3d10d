// Package jobfile reads job descriptions from files in any format viper
// understands (yaml, json, toml, ...). The format follows the extension.
//
//	executable: cat
//	arguments: [-n]
//	working_directory: /tmp
//	input: in.txt
//	output: out.txt
//	environment:
//	  lang: C
//	  home: $HOME
//
// Keys are case-insensitive, so environment names are upper-cased. Values
// starting with $ are expanded from the environment of the caller.
package jobfile

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/CZERTAINLY/localjob/internal/job"
)

// Load reads a single description from path.
func Load(path string) (job.Description, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return job.Description{}, fmt.Errorf("reading job file %s: %w", path, err)
	}
	d, err := Parse(v)
	if err != nil {
		return job.Description{}, fmt.Errorf("parsing job file %s: %w", path, err)
	}
	return d, nil
}

// Parse decodes the description held by v. Unknown keys are an error.
func Parse(v *viper.Viper) (job.Description, error) {
	var d job.Description
	err := v.Unmarshal(&d,
		viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc()),
		func(c *mapstructure.DecoderConfig) {
			c.ErrorUnused = true
		},
	)
	if err != nil {
		return job.Description{}, err
	}
	if d.Environment != nil {
		d.Environment = environ(d.Environment)
	}
	return d, nil
}

func environ(env map[string]string) map[string]string {
	ret := make(map[string]string, len(env))
	for k, v := range env {
		if strings.HasPrefix(v, "$") {
			v = os.ExpandEnv(v)
		}
		ret[strings.ToUpper(k)] = v
	}
	return ret
}

// LoadAll reads the files in parallel, the result keeps the order of paths.
func LoadAll(ctx context.Context, paths []string) ([]job.Description, error) {
	ret := make([]job.Description, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			d, err := Load(path)
			if err != nil {
				return err
			}
			ret[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ret, nil
}
