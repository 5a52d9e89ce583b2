package formulary

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Seed is the reference-data file loaded by the seed command.
//
//	medicaments:
//	  - name: Warfarin
//	    contraindications: [Peptic ulcer]
//	contraindications:
//	  - name: Peptic ulcer
//	interactions:
//	  - [Warfarin, Aspirin]
type Seed struct {
	Medicaments       []SeedMedicament `yaml:"medicaments"`
	Contraindications []SeedEntry      `yaml:"contraindications"`
	Interactions      [][]string       `yaml:"interactions"`
}

type SeedEntry struct {
	Name        string  `yaml:"name"`
	Description *string `yaml:"description"`
}

type SeedMedicament struct {
	SeedEntry         `yaml:",inline"`
	Contraindications []string `yaml:"contraindications"`
}

// SeedResult counts rows the load created. Links counts every link in the
// file, new or not.
type SeedResult struct {
	Medicaments       int
	Contraindications int
	Interactions      int
	Links             int
}

func DecodeSeed(r io.Reader) (*Seed, error) {
	var s Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	for i, pair := range s.Interactions {
		if len(pair) != 2 {
			return nil, fmt.Errorf("interaction %d: want 2 medicament names, got %d", i, len(pair))
		}
	}
	return &s, nil
}

// LoadSeed applies seed in one transaction. Entries that already exist are
// left untouched, so loading the same file twice is a no-op.
func (s *Service) LoadSeed(ctx context.Context, seed *Seed) (SeedResult, error) {
	var res SeedResult
	err := s.uow.Do(ctx, func(ctx context.Context) error {
		res = SeedResult{}
		conditions := make(map[string]*Contraindication)
		ensureCondition := func(e SeedEntry) (*Contraindication, error) {
			key := NormalizeName(e.Name)
			if c, ok := conditions[key]; ok {
				return c, nil
			}
			existed := s.contraindicationExists(ctx, key)
			c, err := s.EnsureContraindication(ctx, e.Name, e.Description)
			if err != nil {
				return nil, fmt.Errorf("contraindication %q: %w", e.Name, err)
			}
			if !existed {
				res.Contraindications++
			}
			conditions[key] = c
			return c, nil
		}

		for _, e := range seed.Contraindications {
			if _, err := ensureCondition(e); err != nil {
				return err
			}
		}

		meds := make(map[string]*Medicament)
		for _, e := range seed.Medicaments {
			existed := s.medicamentExists(ctx, e.Name)
			m, err := s.EnsureMedicament(ctx, e.Name, e.Description)
			if err != nil {
				return fmt.Errorf("medicament %q: %w", e.Name, err)
			}
			if !existed {
				res.Medicaments++
			}
			meds[NormalizeName(e.Name)] = m

			for _, cname := range e.Contraindications {
				c, err := ensureCondition(SeedEntry{Name: cname})
				if err != nil {
					return err
				}
				if err := s.links.Link(ctx, m.ID, c.ID); err != nil {
					return err
				}
				res.Links++
			}
		}

		for _, pair := range seed.Interactions {
			ids := make([]*Medicament, 2)
			for i, name := range pair {
				m, ok := meds[NormalizeName(name)]
				if !ok {
					var err error
					if m, err = s.EnsureMedicament(ctx, name, nil); err != nil {
						return fmt.Errorf("interaction medicament %q: %w", name, err)
					}
					meds[NormalizeName(name)] = m
				}
				ids[i] = m
			}
			_, created, err := s.addInteraction(ctx, ids[0].ID, ids[1].ID)
			if err != nil {
				return fmt.Errorf("interaction %s/%s: %w", ids[0].Name, ids[1].Name, err)
			}
			if created {
				res.Interactions++
			}
		}
		return nil
	})
	return res, err
}

func (s *Service) medicamentExists(ctx context.Context, name string) bool {
	_, err := s.medicaments.GetByName(ctx, NormalizeName(name))
	return err == nil
}

func (s *Service) contraindicationExists(ctx context.Context, name string) bool {
	_, err := s.contraindications.GetByName(ctx, name)
	return err == nil
}
