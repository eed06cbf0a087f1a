package util

import (
	"os"
	"path"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to the upper-cased flag name to build its env variable
const EnvPrefix = "NB_"

// SetFlagsFromEnvVars reads and updates flag values from systemd credentials or from
// environment variables with prefix NB_. Credentials take precedence, which keeps secrets
// such as the pre-shared key out of the process environment.
func SetFlagsFromEnvVars(cmd *cobra.Command) {
	credsDir, present := os.LookupEnv("CREDENTIALS_DIRECTORY")

	setFlag := func(flags *pflag.FlagSet, f *pflag.Flag) {
		name := flagNameToUpper(f.Name)

		if present {
			data, e := os.ReadFile(path.Join(credsDir, name))

			if e == nil {
				err := flags.Set(f.Name, strings.TrimSuffix(string(data), "\n"))

				if err != nil {
					log.Infof("unable to configure flag %s using credential %s, err: %v", f.Name, name, err)
				} else {
					return
				}
			}
		}

		// E.g. PRESHARED_KEY -> NB_PRESHARED_KEY
		envName := EnvPrefix + name

		if value, varPresent := os.LookupEnv(envName); varPresent {
			err := flags.Set(f.Name, value)

			if err != nil {
				log.Infof("unable to configure flag %s using variable %s, err: %v", f.Name, envName, err)
			}
		}
	}

	persistent := cmd.PersistentFlags()
	persistent.VisitAll(func(f *pflag.Flag) { setFlag(persistent, f) })

	local := cmd.LocalNonPersistentFlags()
	local.VisitAll(func(f *pflag.Flag) {
		// LocalNonPersistentFlags returns a copy, values must be set on the command's own set
		setFlag(cmd.Flags(), f)
	})
}

// flagNameToUpper converts a flag name to its corresponding base env name
// replacing dashes by underscores and making the result uppercase
// E.g. allowed-ips -> ALLOWED_IPS
func flagNameToUpper(cmdFlag string) string {
	return strings.ToUpper(strings.ReplaceAll(cmdFlag, "-", "_"))
}
