package credentials_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/credentials"
)

var _ = Describe("Manager", func() {
	var (
		dir string
		mgr *credentials.Manager
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		var err error
		mgr, err = credentials.NewManager(dir)
		Expect(err).NotTo(HaveOccurred())
	})

	writeFile := func(body string) {
		Expect(os.WriteFile(filepath.Join(dir, "credentials.toml"), []byte(body), 0o600)).To(Succeed())
	}

	mustKey := func(provider string) string {
		key, err := mgr.GetKey(provider)
		ExpectWithOffset(1, err).NotTo(HaveOccurred())
		return key
	}

	It("points at credentials.toml inside the directory", func() {
		Expect(mgr.Path()).To(Equal(filepath.Join(dir, "credentials.toml")))
	})

	Describe("Load", func() {
		It("starts empty when the file is missing", func() {
			f, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Providers).To(BeEmpty())
		})

		It("decodes stored providers", func() {
			writeFile("version = 0\n\n[providers.zhipu]\napi_key = \"zp-123\"\n")

			f, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Providers).To(HaveKeyWithValue("zhipu", HaveField("APIKey", "zp-123")))
		})

		It("rejects malformed TOML", func() {
			writeFile("not valid [[[")

			f, err := mgr.Load()
			Expect(err).To(MatchError(ContainSubstring("parsing credentials")))
			Expect(f).To(BeNil())
		})
	})

	Describe("Save", func() {
		It("writes the file owner-readable only", func() {
			Expect(mgr.Save(&credentials.File{
				Providers: map[string]credentials.Entry{"openai": {APIKey: "sk-test"}},
			})).To(Succeed())

			info, err := os.Stat(mgr.Path())
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
		})

		It("leaves no temp files behind", func() {
			Expect(mgr.SetKey("zhipu", "k1")).To(Succeed())
			Expect(mgr.SetKey("zhipu", "k2")).To(Succeed())

			entries, err := os.ReadDir(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Name()).To(Equal("credentials.toml"))
		})

		It("refuses nil", func() {
			Expect(mgr.Save(nil)).NotTo(Succeed())
		})
	})

	Describe("SetKey and GetKey", func() {
		It("replaces a key without touching other providers", func() {
			Expect(mgr.SetKey("doubao", "old")).To(Succeed())
			Expect(mgr.SetKey("zhipu", "zp")).To(Succeed())
			Expect(mgr.SetKey("doubao", "new")).To(Succeed())

			Expect(mustKey("doubao")).To(Equal("new"))
			Expect(mustKey("zhipu")).To(Equal("zp"))
		})

		It("records when the key was set", func() {
			before := time.Now().Add(-time.Second).Truncate(time.Second)
			Expect(mgr.SetKey("doubao", "ark-key")).To(Succeed())

			f, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Providers["doubao"].SetAt).To(BeTemporally(">=", before))
		})

		It("returns nothing for a provider never stored", func() {
			Expect(mustKey("gemini")).To(BeEmpty())
		})
	})

	Describe("RemoveKey", func() {
		It("forgets a stored key", func() {
			Expect(mgr.SetKey("openai", "sk-test")).To(Succeed())
			Expect(mgr.RemoveKey("openai")).To(Succeed())
			Expect(mustKey("openai")).To(BeEmpty())
		})

		It("tolerates an absent provider", func() {
			Expect(mgr.RemoveKey("nonexistent")).To(Succeed())
		})
	})

	Describe("ListProviders", func() {
		It("is empty before anything is stored", func() {
			providers, err := mgr.ListProviders()
			Expect(err).NotTo(HaveOccurred())
			Expect(providers).To(BeEmpty())
		})

		It("sorts provider names", func() {
			Expect(mgr.SetKey("zhipu", "1")).To(Succeed())
			Expect(mgr.SetKey("anthropic", "2")).To(Succeed())

			providers, err := mgr.ListProviders()
			Expect(err).NotTo(HaveOccurred())
			Expect(providers).To(Equal([]string{"anthropic", "zhipu"}))
		})
	})
})

var _ = Describe("Resolve", func() {
	var mgr *credentials.Manager

	BeforeEach(func() {
		var err error
		mgr, err = credentials.NewManager(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		GinkgoT().Setenv("ZHIPU_API_KEY", "")
		GinkgoT().Setenv("DOUBAO_API_KEY", "")
		GinkgoT().Setenv("ARK_API_KEY", "")
	})

	It("prefers an explicit key", func() {
		Expect(mgr.SetKey("zhipu", "stored")).To(Succeed())

		key, src, err := mgr.Resolve("zhipu", "explicit")
		Expect(err).NotTo(HaveOccurred())
		Expect(key).To(Equal("explicit"))
		Expect(src).To(Equal(credentials.SourceExplicit))
	})

	It("falls back to the stored key before the environment", func() {
		GinkgoT().Setenv("ZHIPU_API_KEY", "from-env")
		Expect(mgr.SetKey("zhipu", "stored")).To(Succeed())

		key, src, err := mgr.Resolve("zhipu", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(key).To(Equal("stored"))
		Expect(src).To(Equal(credentials.SourceStored))
	})

	It("checks each environment variable in order", func() {
		GinkgoT().Setenv("ARK_API_KEY", "ark")

		key, src, err := mgr.Resolve("doubao", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(key).To(Equal("ark"))
		Expect(src).To(Equal(credentials.SourceEnv))
	})

	It("works without a manager", func() {
		GinkgoT().Setenv("ZHIPU_API_KEY", "from-env")

		var none *credentials.Manager
		key, _, err := none.Resolve("zhipu", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(key).To(Equal("from-env"))
	})

	It("returns nothing when no source has a key", func() {
		key, src, err := mgr.Resolve("doubao", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(key).To(BeEmpty())
		Expect(src).To(Equal(credentials.SourceNone))
	})
})

var _ = DescribeTable("EnvVarForProvider",
	func(provider, want string) {
		Expect(credentials.EnvVarForProvider(provider)).To(Equal(want))
	},
	Entry("zhipu", "zhipu", "ZHIPU_API_KEY"),
	Entry("doubao uses its primary variable", "doubao", "DOUBAO_API_KEY"),
	Entry("unknown", "unknown", ""),
)

var _ = Describe("supported providers", func() {
	It("lists every key-taking provider in sorted order", func() {
		Expect(credentials.SupportedProviders()).To(Equal([]string{
			"anthropic", "doubao", "gemini", "openai", "zhipu",
		}))
	})

	It("excludes keyless providers", func() {
		Expect(credentials.IsSupportedProvider("zhipu")).To(BeTrue())
		Expect(credentials.IsSupportedProvider("ollama")).To(BeFalse())
		Expect(credentials.IsSupportedProvider("unknown")).To(BeFalse())
	})
})
