package cmd

import (
	"context"
	"fmt"
	"log"

	"OctaMuse/config"
	"OctaMuse/db"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试Redis连接是否成功，并进行基本读写操作。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始测试Redis连接...")

		cfg := config.Load()
		fmt.Printf("Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		if err := db.ConnectRedis(cfg); err != nil {
			log.Fatalf("无法连接到Redis: %v", err)
		}
		fmt.Println("Redis连接成功！")

		ctx := context.Background()
		if err := db.RedisClient.Set(ctx, "octamuse:ping", "pong", 0).Err(); err != nil {
			log.Fatalf("Redis写入测试失败: %v", err)
		}
		val, err := db.RedisClient.Get(ctx, "octamuse:ping").Result()
		if err != nil || val != "pong" {
			log.Fatalf("Redis读取测试失败: val=%q err=%v", val, err)
		}
		db.RedisClient.Del(ctx, "octamuse:ping")
		fmt.Println("Redis基本操作测试成功！")

		if err := db.CloseRedis(); err != nil {
			log.Printf("关闭Redis连接时发生错误: %v", err)
		}
		fmt.Println("Redis测试完成，连接已关闭。")
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
