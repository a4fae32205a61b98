package network

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// AddressBook maps a node id to the host:port its transponder listens on.
type AddressBook map[string]string

func LoadAddressBook(path string) (AddressBook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading address book: %w", err)
	}

	book := AddressBook{}
	if err := yaml.Unmarshal(data, &book); err != nil {
		return nil, fmt.Errorf("parsing address book %s: %w", path, err)
	}

	return book, nil
}

func (b AddressBook) Write(path string) error {
	data, err := yaml.Marshal(map[string]string(b))
	if err != nil {
		return fmt.Errorf("encoding address book: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing address book: %w", err)
	}

	return nil
}

// Ids returns the node ids in sorted order.
func (b AddressBook) Ids() []string {
	ids := make([]string, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}
