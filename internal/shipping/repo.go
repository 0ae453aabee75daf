package shipping

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkarim-dev/backend-bazar/internal/cache"
)

// Repo loads and stores per-store shipping settings, with a Redis
// read-through cache in front of the single-row lookup checkout performs.
type Repo struct {
	Pool  *pgxpool.Pool
	Cache *cache.Cache
}

const settingColumns = `store_id, enabled, shipping_type, flat_rate,
	per_item_fee, max_item_fee,
	base_weight_grams, base_weight_fee, additional_weight_fee,
	free_shipping_min, local_delivery_fee, regional_delivery_fee,
	local_areas, regional_areas,
	enable_cod, cod_fee, enable_express, express_fee,
	estimated_days, express_estimated_days, updated_at`

// Get returns the store's shipping setting. A store that never saved one
// gets the disabled default rather than an error.
func (r *Repo) Get(ctx context.Context, storeID uuid.UUID) (Setting, error) {
	var cached Setting
	if found, err := r.Cache.GetJSON(ctx, settingCacheKey(storeID), &cached); err == nil && found {
		return cached, nil
	}

	row := r.Pool.QueryRow(ctx,
		`SELECT `+settingColumns+` FROM shipping_settings WHERE store_id = $1`,
		storeID.String())
	s, err := scanSetting(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DefaultSetting(storeID), nil
		}
		return Setting{}, fmt.Errorf("get shipping setting: %w", err)
	}
	_ = r.Cache.SetJSON(ctx, settingCacheKey(storeID), s)
	return s, nil
}

// Upsert replaces the store's shipping setting and drops the cached copy.
func (r *Repo) Upsert(ctx context.Context, s Setting) error {
	_, err := r.Pool.Exec(ctx, `
		INSERT INTO shipping_settings (
			store_id, enabled, shipping_type, flat_rate,
			per_item_fee, max_item_fee,
			base_weight_grams, base_weight_fee, additional_weight_fee,
			free_shipping_min, local_delivery_fee, regional_delivery_fee,
			local_areas, regional_areas,
			enable_cod, cod_fee, enable_express, express_fee,
			estimated_days, express_estimated_days, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,now())
		ON CONFLICT (store_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			shipping_type = EXCLUDED.shipping_type,
			flat_rate = EXCLUDED.flat_rate,
			per_item_fee = EXCLUDED.per_item_fee,
			max_item_fee = EXCLUDED.max_item_fee,
			base_weight_grams = EXCLUDED.base_weight_grams,
			base_weight_fee = EXCLUDED.base_weight_fee,
			additional_weight_fee = EXCLUDED.additional_weight_fee,
			free_shipping_min = EXCLUDED.free_shipping_min,
			local_delivery_fee = EXCLUDED.local_delivery_fee,
			regional_delivery_fee = EXCLUDED.regional_delivery_fee,
			local_areas = EXCLUDED.local_areas,
			regional_areas = EXCLUDED.regional_areas,
			enable_cod = EXCLUDED.enable_cod,
			cod_fee = EXCLUDED.cod_fee,
			enable_express = EXCLUDED.enable_express,
			express_fee = EXCLUDED.express_fee,
			estimated_days = EXCLUDED.estimated_days,
			express_estimated_days = EXCLUDED.express_estimated_days,
			updated_at = now()`,
		s.StoreID.String(), s.Enabled, string(s.Type), s.FlatRate,
		s.PerItemFee, s.MaxItemFee,
		s.BaseWeightGrams, s.BaseWeightFee, s.AdditionalWeightFee,
		s.FreeShippingMin, s.LocalDeliveryFee, s.RegionalDeliveryFee,
		s.LocalAreas, s.RegionalAreas,
		s.EnableCOD, s.CODFee, s.EnableExpress, s.ExpressFee,
		s.EstimatedDays, s.ExpressEstimatedDays)
	if err != nil {
		return fmt.Errorf("upsert shipping setting: %w", err)
	}
	_ = r.Cache.Delete(ctx, settingCacheKey(s.StoreID))
	return nil
}

func scanSetting(row pgx.Row) (Setting, error) {
	var (
		s       Setting
		storeID string
		typ     string
	)
	if err := row.Scan(
		&storeID, &s.Enabled, &typ, &s.FlatRate,
		&s.PerItemFee, &s.MaxItemFee,
		&s.BaseWeightGrams, &s.BaseWeightFee, &s.AdditionalWeightFee,
		&s.FreeShippingMin, &s.LocalDeliveryFee, &s.RegionalDeliveryFee,
		&s.LocalAreas, &s.RegionalAreas,
		&s.EnableCOD, &s.CODFee, &s.EnableExpress, &s.ExpressFee,
		&s.EstimatedDays, &s.ExpressEstimatedDays, &s.UpdatedAt,
	); err != nil {
		return Setting{}, err
	}
	id, err := uuid.Parse(storeID)
	if err != nil {
		return Setting{}, fmt.Errorf("shipping setting store id: %w", err)
	}
	s.StoreID = id
	s.Type = Type(typ)
	return s, nil
}

func settingCacheKey(storeID uuid.UUID) string {
	return "shipping:setting:" + storeID.String()
}
