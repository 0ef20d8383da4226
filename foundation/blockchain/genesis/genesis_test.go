package genesis_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ardanlabs/powledger/foundation/blockchain/genesis"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Load(t *testing.T) {
	t.Log("Given the need to load a genesis file.")
	{
		path := filepath.Join(t.TempDir(), "genesis.json")
		data := `{"date":"2024-01-01T00:00:00Z","difficulty":2,"mining_reward":50}`
		if err := os.WriteFile(path, []byte(data), 0600); err != nil {
			t.Fatalf("\t%s\tShould be able to write the genesis file: %v", failed, err)
		}

		gen, err := genesis.Load(path)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to load the genesis file: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to load the genesis file.", success)

		if gen.Difficulty != 2 || gen.MiningReward != 50 {
			t.Fatalf("\t%s\tShould get back the file values: %+v", failed, gen)
		}
		t.Logf("\t%s\tShould get back the file values.", success)

		if gen.TimeStamp() != genesis.Default().TimeStamp() {
			t.Fatalf("\t%s\tShould get the same timestamp as the default genesis.", failed)
		}
		t.Logf("\t%s\tShould get the same timestamp as the default genesis.", success)

		bad := filepath.Join(t.TempDir(), "bad.json")
		if err := os.WriteFile(bad, []byte(`{"difficulty":2}`), 0600); err != nil {
			t.Fatalf("\t%s\tShould be able to write the genesis file: %v", failed, err)
		}

		if _, err := genesis.Load(bad); err == nil {
			t.Fatalf("\t%s\tShould reject a genesis without a mining reward.", failed)
		}
		t.Logf("\t%s\tShould reject a genesis without a mining reward.", success)
	}
}
