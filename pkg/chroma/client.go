package chroma

import (
	"context"
	"fmt"
	"log"
	"os"

	"daybrief-backend/pkg/config"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
)

const (
	collectionName = "emails"
	// Embedding models have token limits; longer documents are truncated.
	maxDocumentLen = 10000
)

type ChromaClient struct {
	client     chroma.Client
	embedFunc  *gemini.GeminiEmbeddingFunction
	collection chroma.Collection
}

func NewChromaClient(cfg *config.Config) (*ChromaClient, error) {
	if cfg.ChromaAPIKey == "" {
		return nil, fmt.Errorf("CHROMA_API_KEY is required")
	}

	// The Gemini embedding function reads its key from the environment.
	if cfg.GeminiAPIKey != "" {
		os.Setenv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	}

	embedFunc, err := gemini.NewGeminiEmbeddingFunction(
		gemini.WithEnvAPIKey(),
		gemini.WithDefaultModel("text-embedding-004"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini embedding function: %w", err)
	}

	var client chroma.Client
	if cfg.ChromaDatabase != "" && cfg.ChromaTenant != "" {
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
			chroma.WithDatabaseAndTenant(cfg.ChromaDatabase, cfg.ChromaTenant),
		)
	} else if cfg.ChromaTenant != "" {
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
			chroma.WithTenant(cfg.ChromaTenant),
		)
	} else {
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Chroma client: %w", err)
	}

	collection, err := client.GetOrCreateCollection(
		context.Background(),
		collectionName,
		chroma.WithEmbeddingFunctionCreate(embedFunc),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	log.Printf("[Chroma] Initialized client with collection: %s", collectionName)

	return &ChromaClient{
		client:     client,
		embedFunc:  embedFunc,
		collection: collection,
	}, nil
}

// UpsertEmailEmbedding indexes one stored email, keyed by its row ID so a
// re-synced message replaces its previous document instead of duplicating it.
func (c *ChromaClient) UpsertEmailEmbedding(ctx context.Context, messageID, integrationID, subject, body string) error {
	text := fmt.Sprintf("Subject: %s\n\nBody: %s", subject, body)
	if len(text) > maxDocumentLen {
		text = text[:maxDocumentLen]
	}

	metadata, err := chroma.NewDocumentMetadataFromMap(map[string]interface{}{
		"integration_id": integrationID,
		"subject":        subject,
	})
	if err != nil {
		return fmt.Errorf("failed to create metadata: %w", err)
	}

	err = c.collection.Upsert(
		ctx,
		chroma.WithIDs(chroma.DocumentID(messageID)),
		chroma.WithMetadatas(metadata),
		chroma.WithTexts(text),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert email embedding: %w", err)
	}

	return nil
}

// SemanticSearch returns stored email row IDs ranked by embedding distance,
// scoped to one integration.
func (c *ChromaClient) SemanticSearch(ctx context.Context, integrationID, query string, limit int) ([]string, []float64, error) {
	where := chroma.EqString("integration_id", integrationID)

	results, err := c.collection.Query(
		ctx,
		chroma.WithQueryTexts(query),
		chroma.WithNResults(limit),
		chroma.WithWhereQuery(where),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query collection: %w", err)
	}

	if results == nil || results.CountGroups() == 0 {
		return []string{}, []float64{}, nil
	}

	idGroups := results.GetIDGroups()
	distanceGroups := results.GetDistancesGroups()
	if len(idGroups) == 0 || len(idGroups[0]) == 0 {
		return []string{}, []float64{}, nil
	}

	messageIDs := make([]string, 0, len(idGroups[0]))
	for _, id := range idGroups[0] {
		messageIDs = append(messageIDs, string(id))
	}

	distances := []float64{}
	if len(distanceGroups) > 0 && len(distanceGroups[0]) > 0 {
		for _, d := range distanceGroups[0] {
			distances = append(distances, float64(d))
		}
	}

	log.Printf("[Chroma] Semantic search returned %d results for integration %s", len(messageIDs), integrationID)
	return messageIDs, distances, nil
}

// DeleteEmailEmbedding removes one document by stored email row ID.
func (c *ChromaClient) DeleteEmailEmbedding(ctx context.Context, messageID string) error {
	err := c.collection.Delete(ctx, chroma.WithIDsDelete(chroma.DocumentID(messageID)))
	if err != nil {
		return fmt.Errorf("failed to delete email embedding: %w", err)
	}
	return nil
}

// DeleteByIntegration drops every document indexed for one integration.
// Called on disconnect so the index does not outlive the rows.
func (c *ChromaClient) DeleteByIntegration(ctx context.Context, integrationID string) error {
	where := chroma.EqString("integration_id", integrationID)
	err := c.collection.Delete(ctx, chroma.WithWhereDelete(where))
	if err != nil {
		return fmt.Errorf("failed to delete integration embeddings: %w", err)
	}
	return nil
}
