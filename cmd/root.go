/*
Package cmd implements the command-line interface for the engram memory
service. It provides commands for serving the MCP tool surface, backfilling
embeddings, and inspecting the store.
*/
package cmd

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

/*
Embed a mini filesystem into the binary to hold the default config file.
This will be written to the home directory of the user running the service,
which allows a developer to easily override the config file.
*/
//go:embed cfg/*
var embedded embed.FS

/*
rootCmd represents the base command when called without any subcommands
*/
var (
	projectName  = "engram"
	cfgFile      string
	openaiAPIKey string

	rootCmd = &cobra.Command{
		Use:   "engram",
		Short: "A persistent semantic memory and coordination store for AI agents",
		Long:  longRoot,
	}
)

/*
Execute is the main entry point for the engram CLI. It initializes the root
command and executes it.
*/
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yml",
		"config file (default is $HOME/."+projectName+"/config.yml)",
	)

	rootCmd.PersistentFlags().StringVar(
		&openaiAPIKey,
		"openai-api-key",
		os.Getenv("OPENAI_API_KEY"),
		"API key for the OpenAI embedding provider",
	)
}

/*
initConfig writes the default config file to the user's home directory if it
doesn't exist, and then reads the config file from there.
*/
func initConfig() {
	var err error

	if err = writeConfig(); err != nil {
		log.Fatal(err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	home, _ := os.UserHomeDir()
	viper.AddConfigPath(home + "/." + projectName)

	if err = viper.ReadInConfig(); err != nil {
		log.Fatal(err)
		return
	}

	// If the OpenAI API key was provided via flag, export it so the embedder
	// picks it up the same way it would in a plain environment.
	if openaiAPIKey != "" {
		_ = os.Setenv("OPENAI_API_KEY", openaiAPIKey)
	}
}

/*
writeConfig copies the embedded default config into the user's home directory
when no config exists there yet.
*/
func writeConfig() error {
	home, _ := os.UserHomeDir()
	return writeConfigTo(home + "/." + projectName)
}

func writeConfigTo(dir string) error {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	fullPath := dir + "/" + cfgFile
	if CheckFileExists(fullPath) {
		return nil
	}

	data, err := fs.ReadFile(embedded, "cfg/"+cfgFile)
	if err != nil {
		return fmt.Errorf("failed to open embedded config file: %w", err)
	}

	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Println("wrote config file to", fullPath)
	return nil
}

func CheckFileExists(filePath string) bool {
	_, error := os.Stat(filePath)
	return !errors.Is(error, os.ErrNotExist)
}

/*
longRoot contains the detailed help text for the root command.
*/
var longRoot = `
engram is a persistent memory layer for AI agents. It stores typed memories
with vector embeddings for semantic recall, links them into a knowledge
graph, and carries durable handoff messages between agent instances.
`
