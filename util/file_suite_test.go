package util_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/netbirdio/wgpeer/util"
)

var _ = Describe("Client", func() {

	var (
		tmpDir string
	)

	type TestConfig struct {
		Endpoint   string
		AllowedIPs []string
		Index      uint32
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "wgpeer_util_test_tmp_*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		err := os.RemoveAll(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Config", func() {
		Context("in JSON format", func() {
			It("should be written and read successfully", func() {
				written := &TestConfig{
					Endpoint:   "198.51.100.20:51820",
					AllowedIPs: []string{"10.0.0.0/8", "fd00::/64"},
					Index:      7,
				}

				file := filepath.Join(tmpDir, "nested", "peer.json")
				err := util.WriteJson(context.Background(), file, written)
				Expect(err).NotTo(HaveOccurred())

				info, err := os.Stat(file)
				Expect(err).NotTo(HaveOccurred())
				Expect(info.Mode().Perm()).To(Equal(os.FileMode(0600)))

				read, err := util.ReadJson(file, &TestConfig{})
				Expect(err).NotTo(HaveOccurred())
				Expect(read).NotTo(BeNil())
				Expect(read.(*TestConfig).Endpoint).To(BeEquivalentTo(written.Endpoint))
				Expect(read.(*TestConfig).AllowedIPs).To(ContainElements(written.AllowedIPs))
				Expect(read.(*TestConfig).Index).To(BeEquivalentTo(written.Index))

				entries, err := os.ReadDir(filepath.Dir(file))
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(1))
			})

			It("should not be written with a canceled context", func() {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()

				file := filepath.Join(tmpDir, "peer.json")
				err := util.WriteJson(ctx, file, &TestConfig{})
				Expect(err).To(MatchError(context.Canceled))
				Expect(util.FileExists(file)).To(BeFalse())
			})
		})

		Context("with environment variables", func() {
			It("should be substituted", func() {
				Expect(os.Setenv("WGPEER_TEST_ENDPOINT", "203.0.113.9:51820")).To(Succeed())
				defer os.Unsetenv("WGPEER_TEST_ENDPOINT")

				file := filepath.Join(tmpDir, "peer.json")
				content := `{"Endpoint": "{{ .WGPEER_TEST_ENDPOINT }}", "Index": 3}`
				Expect(os.WriteFile(file, []byte(content), 0600)).To(Succeed())

				read, err := util.ReadJsonWithEnvSub(file, &TestConfig{})
				Expect(err).NotTo(HaveOccurred())
				Expect(read.(*TestConfig).Endpoint).To(Equal("203.0.113.9:51820"))
				Expect(read.(*TestConfig).Index).To(BeEquivalentTo(3))
			})

			It("should fail on a missing variable", func() {
				file := filepath.Join(tmpDir, "peer.json")
				content := `{"Endpoint": "{{ .WGPEER_TEST_UNSET_VARIABLE }}"}`
				Expect(os.WriteFile(file, []byte(content), 0600)).To(Succeed())

				_, err := util.ReadJsonWithEnvSub(file, &TestConfig{})
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Removing a JSON file", func() {
		It("should be successful whether or not it exists", func() {
			file := filepath.Join(tmpDir, "state.json")
			Expect(util.RemoveJson(file)).To(Succeed())

			Expect(util.WriteJson(context.Background(), file, []string{"1"})).To(Succeed())
			Expect(util.FileExists(file)).To(BeTrue())

			Expect(util.RemoveJson(file)).To(Succeed())
			Expect(util.FileExists(file)).To(BeFalse())
		})
	})

	Describe("Handle config file without full path", func() {
		Context("config file handling", func() {
			It("should be successful", func() {
				written := &TestConfig{
					Index: 123,
				}
				cfgFile := "test_cfg.json"
				defer os.Remove(cfgFile)

				err := util.WriteJson(context.Background(), cfgFile, written)
				Expect(err).NotTo(HaveOccurred())

				read, err := util.ReadJson(cfgFile, &TestConfig{})
				Expect(err).NotTo(HaveOccurred())
				Expect(read).NotTo(BeNil())
			})
		})
	})
})
