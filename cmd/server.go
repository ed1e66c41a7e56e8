package cmd

import (
	"OctaMuse/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动OctaMuse服务器",
	Long:  `启动OctaMuse音乐生成系统的HTTP服务器，提供生成、曲库和积分API`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
