package cmd

import (
	"context"
	"fmt"
	"log"

	"OctaMuse/config"
	"OctaMuse/storage"

	"github.com/minio/minio-go/v7"
	"github.com/spf13/cobra"
)

var (
	minioBucket string
	minioPrefix string
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储桶管理",
	Long:  `查看转存的生成结果文件，按存储桶和前缀列出对象。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始连接MinIO服务器...")

		cfg := config.Load()
		fmt.Printf("MinIO配置: %s\n", cfg.MinioEndpoint)

		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("无法连接到MinIO: %v", err)
		}
		fmt.Println("MinIO连接成功！")

		client := storage.GetMinioClient()
		buckets := []string{storage.MusicBucket, storage.CoverBucket}
		if minioBucket != "" {
			buckets = []string{minioBucket}
		}

		ctx := context.Background()
		for _, bucket := range buckets {
			fmt.Printf("\n存储桶 %s (前缀: %q):\n", bucket, minioPrefix)
			var count int
			var bytes int64
			for object := range client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
				Prefix:    minioPrefix,
				Recursive: true,
			}) {
				if object.Err != nil {
					log.Fatalf("列出文件失败: %v", object.Err)
				}
				fmt.Printf("  %s\t%d bytes\t%s\n", object.Key, object.Size, object.LastModified.Format("2006-01-02 15:04:05"))
				count++
				bytes += object.Size
			}
			fmt.Printf("共 %d 个对象, %d bytes\n", count, bytes)
		}

		fmt.Println("\nMinIO操作完成！")
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioBucket, "bucket", "b", "", "只查看指定存储桶")
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按前缀过滤文件")

	minioCmd.Example = `  # 列出两个存储桶中的所有文件
  octamuse minio

  # 只看音频桶中某个用户的文件
  octamuse minio -b music-files -p "42_"`
}
