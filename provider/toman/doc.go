// Package toman bundles the informal Iranian Toman market providers:
// Telegram channel scanners for USD cash, USDT and EUR quotes, and the
// bon-bast.com website scraper.
package toman
