package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/roarinpenguin/roarinca/ca"
	"github.com/roarinpenguin/roarinca/registry"
	"github.com/roarinpenguin/roarinca/storage"
	bboltstorage "github.com/roarinpenguin/roarinca/storage/bbolt"
)

var (
	initDataDir  string
	initCN       string
	initOrg      string
	initOU       string
	initCountry  string
	initState    string
	initLocality string
	initKeySize  int
	initForce    bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the certificate authority offline",
	Long: `Creates the root key pair and self-signed certificate without starting
the server. The same data directory can then be served with "roarinca server".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if initCN == "" {
			return errors.New("--cn is required")
		}

		if err := os.MkdirAll(initDataDir, 0o700); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(initDataDir, "roarinca.db"), nil)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer repo.Close()

		ctx := cmd.Context()
		reg := registry.New(repo)
		engine := ca.NewEngine(reg, ca.NewFileArtifactStore(filepath.Join(initDataDir, "ca")))

		// Carry the record version forward when an identity already exists.
		identity, err := reg.GetIdentity(ctx)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			identity = &registry.CAIdentity{CreatedAt: time.Now().UTC()}
		}
		identity.CommonName = initCN
		identity.Organization = initOrg
		identity.OrganizationalUnit = initOU
		identity.Country = initCountry
		identity.State = initState
		identity.Locality = initLocality
		identity.KeyAlgorithm = registry.KeyAlgorithmRSA
		identity.KeySize = initKeySize
		identity.UpdatedAt = time.Now().UTC()
		if err := reg.SaveIdentity(ctx, identity); err != nil {
			return fmt.Errorf("failed to save CA identity: %w", err)
		}

		identity, err = engine.Initialize(ctx, initForce)
		if err != nil {
			if errors.Is(err, ca.ErrAlreadyInitialized) {
				return errors.New("CA is already initialized; use --force to replace it (this invalidates all issued certificates)")
			}
			return err
		}

		certPEM, err := engine.CACertificatePEM()
		if err != nil {
			return err
		}
		meta, err := ca.ParseCertificatePEM(certPEM)
		if err != nil {
			return err
		}

		fmt.Printf("Initialized certificate authority in %s\n\n", initDataDir)
		fmt.Printf("  Subject:    %s\n", meta.Subject)
		fmt.Printf("  Serial:     %s\n", meta.SerialNumber)
		fmt.Printf("  Key:        %s-%d\n", identity.KeyAlgorithm, identity.KeySize)
		fmt.Printf("  Not after:  %s\n", meta.NotAfter.Format(time.RFC3339))
		fmt.Printf("  Artifacts:  %s\n", filepath.Join(initDataDir, "ca"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initDataDir, "data-dir", "./data", "Directory for persistent data")
	initCmd.Flags().StringVar(&initCN, "cn", "", "Common name of the authority (required)")
	initCmd.Flags().StringVar(&initOrg, "org", "", "Organization")
	initCmd.Flags().StringVar(&initOU, "ou", "", "Organizational unit")
	initCmd.Flags().StringVar(&initCountry, "country", "", "Two-letter country code")
	initCmd.Flags().StringVar(&initState, "state", "", "State or province")
	initCmd.Flags().StringVar(&initLocality, "locality", "", "Locality or city")
	initCmd.Flags().IntVar(&initKeySize, "key-size", 2048, "RSA key size in bits (2048, 3072 or 4096)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Replace an existing root (invalidates issued certificates)")
}
