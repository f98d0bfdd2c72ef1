// Example usage of the Wyvern order SDK
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	wyvernsdk "github.com/kaifufi/wyvern-sdk-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	config, err := wyvernsdk.LoadConfig(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger, err := wyvernsdk.NewLogger(config.Log)
	if err != nil {
		logrus.Fatalf("Failed to create logger: %v", err)
	}

	client, err := wyvernsdk.NewClient(*config, wyvernsdk.WithLogger(logger))
	if err != nil {
		logger.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Example: list the cheapest open sell orders for a contract
	side := wyvernsdk.OrderSideSell
	page, err := client.GetOrders(ctx, wyvernsdk.OrderQuery{
		AssetContract: "0x06012c8cf97bead5deae237070f9587f8e7a266d",
		Side:          &side,
		Limit:         5,
	})
	if err != nil {
		logger.Errorf("Failed to get orders: %v", err)
	} else {
		logger.Infof("Found %d orders", page.Count)
		for _, order := range page.Orders {
			price := wyvernsdk.EstimateCurrentPrice(order, wyvernsdk.DefaultSecondsToBacktrack, false)
			logger.WithFields(logrus.Fields{
				"hash":  order.Hash,
				"maker": order.Maker,
				"price": wyvernsdk.FormatUnits(price, wyvernsdk.EtherDecimals),
			}).Info("order")
		}
	}

	// Example: list an asset for 0.5 ETH, expiring in a day
	tokenID := "1"
	listing, err := client.CreateSellOrder(ctx, wyvernsdk.SellOrderParams{
		Asset: wyvernsdk.AssetWithFees{Asset: wyvernsdk.Asset{
			TokenID:      &tokenID,
			TokenAddress: "0x06012c8cf97bead5deae237070f9587f8e7a266d",
			SchemaName:   wyvernsdk.WyvernSchemaERC721,
		}},
		AccountAddress: os.Getenv("WYVERN_ACCOUNT"),
		StartAmount:    decimal.RequireFromString("0.5"),
		ExpirationTime: time.Now().Add(24 * time.Hour).Unix(),
	})
	if err != nil {
		logger.Errorf("Failed to create sell order: %v", err)
	} else {
		logger.WithField("hash", listing.Hash).Info("listing posted")
	}

	// Example: follow sales in a collection until interrupted
	stream := client.Stream(wyvernsdk.StreamConfig{
		OnError: func(err error) { logger.Warnf("stream: %v", err) },
	})
	_ = stream.OnItemSold("cryptokitties", func(event *wyvernsdk.ItemSoldEvent) {
		logger.WithFields(logrus.Fields{
			"item":  event.Item.NftID,
			"price": event.SalePrice.String(),
			"tx":    event.Transaction.Hash,
		}).Info("item sold")
	})
	if err := stream.Connect(ctx); err != nil {
		logger.Fatalf("Failed to connect stream: %v", err)
	}
	defer stream.Disconnect()

	<-ctx.Done()
}
