package aws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var s3Client *s3.Client

func GetS3Client() *s3.Client {
	if s3Client != nil {
		return s3Client
	}
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Printf("Could not load default config: %s\n", err.Error())
		return nil
	}
	s3Client = s3.NewFromConfig(cfg)
	return s3Client
}

// NewS3Client replaces the singleton, used by tests.
func NewS3Client(c *s3.Client) {
	s3Client = c
}

// AssetPath is where a QR asset lives on local disk, under TEMP_DIR.
func AssetPath(name string) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	tempdir := os.Getenv("TEMP_DIR")
	return path.Join(wd, tempdir, fmt.Sprintf("%s.jpeg", name)), nil
}

// DownloadQRAsset fetches the rendered ticket code image from the assets
// bucket into TEMP_DIR and returns the local path. A missing key is not an
// error; callers re-render in that case.
func DownloadQRAsset(ctx context.Context, name string) (string, error) {
	assetsBucket := os.Getenv("S3_ASSETS_BUCKET")
	filepath, err := AssetPath(name)
	if err != nil {
		return "", err
	}
	client := GetS3Client()
	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(assetsBucket),
		Key:    aws.String(name),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return filepath, nil
		}
		return "", err
	}
	defer result.Body.Close()
	file, err := os.Create(filepath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	if _, err := io.Copy(file, result.Body); err != nil {
		return "", err
	}
	return filepath, nil
}

// UploadQRAsset puts a rendered ticket code image into the assets bucket,
// waits until the object is visible and returns a presigned share URL.
func UploadQRAsset(ctx context.Context, name string, filepath string) (string, error) {
	assetsBucket := os.Getenv("S3_ASSETS_BUCKET")
	file, err := os.Open(filepath)
	if err != nil {
		log.Printf("Could not open file to upload: %s\n", err.Error())
		return "", err
	}
	defer file.Close()
	client := GetS3Client()
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(assetsBucket),
		Key:         aws.String(name),
		Body:        file,
		ContentType: aws.String("image/jpeg"),
	})
	if err != nil {
		log.Printf("Could not put object to S3 bucket: %s\n", err.Error())
		return "", err
	}
	err = s3.NewObjectExistsWaiter(client).Wait(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(assetsBucket),
		Key:    aws.String(name),
	}, time.Minute)
	if err != nil {
		log.Printf("Failed attempt to wait for object %s to exist: %s\n", name, err.Error())
		return "", err
	}
	pre := s3.NewPresignClient(client)
	r, err := pre.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(assetsBucket),
		Key:    aws.String(name),
	}, func(po *s3.PresignOptions) {
		po.Expires = time.Hour
	})
	if err != nil {
		log.Printf("Could not generate presigned URL for object [%s]: %s\n", name, err.Error())
		return "", err
	}
	return r.URL, nil
}
