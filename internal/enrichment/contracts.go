// Package enrichment обогащает список товаров данными каталога и склада параллельными пакетными запросами.
package enrichment

// Операции upstream сервисов
const (
	OperationProductLookup = "product.lookup"
	OperationStockLookup   = "inventory.lookup"
)

// OperationEnrichProducts операция, которую обслуживает Enricher.Serve
const OperationEnrichProducts = "product.enrich"

// EnrichRequest запрос на обогащение списка товаров
type EnrichRequest struct {
	ProductIDs []string `json:"productIds"`
}

// EnrichReply обогащенные товары в порядке запроса
type EnrichReply struct {
	Products []ProductView `json:"products"`
}

// ProductLookupRequest пакетный запрос к каталогу
type ProductLookupRequest struct {
	CorrelationID string   `json:"correlationId"`
	ProductIDs    []string `json:"productIds"`
}

// ProductInfo данные товара из каталога
type ProductInfo struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Category string  `json:"category,omitempty"`
}

// ProductLookupReply ответ каталога, отсутствующие товары просто не возвращаются
type ProductLookupReply struct {
	Products []ProductInfo `json:"products"`
}

// StockLookupRequest пакетный запрос к складу
type StockLookupRequest struct {
	CorrelationID string   `json:"correlationId"`
	ProductIDs    []string `json:"productIds"`
}

// StockInfo остаток товара
type StockInfo struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Warehouse string `json:"warehouse,omitempty"`
}

// StockLookupReply ответ склада
type StockLookupReply struct {
	Items []StockInfo `json:"items"`
}

// ProductView обогащенный товар
type ProductView struct {
	ID         string  `json:"id"`
	Name       string  `json:"name,omitempty"`
	Price      float64 `json:"price,omitempty"`
	Category   string  `json:"category,omitempty"`
	Quantity   int     `json:"quantity"`
	InStock    bool    `json:"inStock"`
	StockKnown bool    `json:"stockKnown"`
	Available  bool    `json:"available"`
	Reason     string  `json:"reason,omitempty"`
}

// Причины недоступности товара
const (
	ReasonNotFound            = "product not found"
	ReasonProductLookupFailed = "product lookup failed"
)
