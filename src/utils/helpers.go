package utils

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"cpass/src/config"
	"cpass/src/lib"
	"cpass/src/models"
	"cpass/src/types"

	awslib "cpass/src/lib/aws"

	"github.com/redis/go-redis/v9"
	"github.com/yeqown/go-qrcode"
)

// Charset skips 0/O and 1/I so gate staff can read codes back over radio.
const codeCharset = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const codeLength = 8

// GenerateTicketCode returns a fresh scan code, e.g. CP-T-9KQ2M7XF.
// Uniqueness is enforced by the tickets table unique index; callers retry
// on collision.
func GenerateTicketCode() (string, error) {
	code := make([]byte, codeLength)
	if _, err := rand.Read(code); err != nil {
		return "", err
	}
	for i := 0; i < codeLength; i++ {
		code[i] = codeCharset[int(code[i])%len(codeCharset)]
	}
	return fmt.Sprintf("%s-%s", config.TicketCodePrefix(), strings.ToUpper(string(code))), nil
}

// ClassifyPriority derives the informational priority class from
// configured thresholds. It never feeds back into state transitions.
func ClassifyPriority(totalPriceCents int64, quantity int) types.TicketPriority {
	if totalPriceCents >= config.VIPPriceThresholdCents() {
		return types.PRIORITY_VIP
	}
	if int64(quantity) >= config.BulkQuantityThreshold() {
		return types.PRIORITY_HIGH
	}
	return types.PRIORITY_NORMAL
}

// TicketQRAssetURL renders the ticket code as a QR image, uploads it to the
// assets bucket and caches the presigned URL. Repeat calls within the cache
// window return the cached link without touching S3.
func TicketQRAssetURL(ticket *models.Ticket) (string, error) {
	filename := fmt.Sprintf("ticketcode_%s", ticket.ID.String())
	rd := lib.GetRedisClient()
	if rd != nil {
		content, err := rd.Get(context.Background(), filename).Result()
		if err != nil {
			if errors.Is(redis.Nil, err) {
				log.Printf("No value for key: %s\n", filename)
			} else {
				log.Printf("Error reading from cache: %s\n", err.Error())
			}
		}
		if content != "" {
			return content, nil
		}
	}

	qrc, err := qrcode.New(ticket.TicketCode)
	if err != nil {
		return "", err
	}
	filepath, err := awslib.AssetPath(filename)
	if err != nil {
		return "", err
	}
	if err := qrc.Save(filepath); err != nil {
		log.Printf("Could not save qrcode to file [%s]: %s\n", filepath, err.Error())
		return "", err
	}
	url, err := awslib.UploadQRAsset(context.Background(), filename, filepath)
	if err != nil {
		log.Printf("Error uploading asset to S3 bucket: %s\n", err.Error())
		return "", err
	}
	if rd != nil {
		rd.SetEx(context.Background(), filename, url, 2*time.Hour)
	}
	return url, nil
}
