package stores

import (
	"os"

	"docsync-server/core"
	"docsync-server/stores/aws"
	"docsync-server/stores/memory"
	"docsync-server/stores/sqlite"

	"github.com/sirupsen/logrus"
)

// Store is a union interface that includes all store types.
type Store interface {
	core.FileStore
	core.UserStore
	core.RoomRegistry
}

func GetStore() Store {
	storageType := os.Getenv("STORAGE_TYPE")
	var store Store

	storageField := logrus.Fields{
		"storageType": storageType,
	}

	switch storageType {
	case "sqlite":
		dataSourceName := os.Getenv("DATA_SOURCE_NAME")
		if dataSourceName == "" {
			dataSourceName = "docsync.db"
		}
		storageField["dataSourceName"] = dataSourceName
		storageField["cgo"] = sqlite.CGOEnabled
		store = sqlite.NewStore(dataSourceName)
	case "s3":
		bucketName := os.Getenv("S3_BUCKET_NAME")
		if bucketName == "" {
			logrus.Fatal("S3_BUCKET_NAME environment variable must be set for s3 storage type")
		}
		storageField["bucketName"] = bucketName
		s3Store, err := aws.NewStore(bucketName)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to create S3 store")
		}
		store = s3Store
	default:
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	}
	logrus.WithFields(storageField).Info("Use storage")
	return store
}
