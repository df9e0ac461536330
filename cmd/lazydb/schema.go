package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/andreyvit/lazydb"
)

type schemaFile struct {
	Tables []tableDef `yaml:"tables"`
}

type tableDef struct {
	Name    string   `yaml:"name"`
	Indexes []string `yaml:"indexes"`
}

func loadSchema(path string) (*lazydb.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseSchema(data)
}

func parseSchema(data []byte) (*lazydb.Schema, error) {
	var sf schemaFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	if len(sf.Tables) == 0 {
		return nil, fmt.Errorf("schema: no tables defined")
	}
	scm := lazydb.NewSchema()
	for _, td := range sf.Tables {
		if td.Name == "" {
			return nil, fmt.Errorf("schema: table without a name")
		}
		lazydb.AddTable(scm, td.Name, td.Indexes...)
	}
	return scm, nil
}
